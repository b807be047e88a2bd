// Package grantkey generates the EdDSA keypair used to sign API grants.
package grantkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// Run generates a grant key pair and writes shell exports. The public half
// feeds OSUSU_GRANT_PUBLIC_KEY on the service; the private half stays with
// whatever issues grants.
func Run(out io.Writer, reader io.Reader) error {
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	publicKey, privateKey, err := ed25519.GenerateKey(reader)
	if err != nil {
		return fmt.Errorf("generate grant key: %w", err)
	}
	if _, err := fmt.Fprintf(out, "export OSUSU_GRANT_PRIVATE_KEY=%s\n", base64.RawStdEncoding.EncodeToString(privateKey)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "export OSUSU_GRANT_PUBLIC_KEY=%s\n", base64.RawStdEncoding.EncodeToString(publicKey)); err != nil {
		return err
	}
	return nil
}
