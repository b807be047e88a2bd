// Package main provides a one-shot utility for grant key generation.
//
// It emits the EdDSA keypair used to sign and verify API access grants.
package main

import (
	"os"

	"github.com/osusu/osusu/internal/platform/config"
	"github.com/osusu/osusu/internal/tools/grantkey"
)

func main() {
	if err := grantkey.Run(os.Stdout, nil); err != nil {
		config.Exitf("generate grant key: %v", err)
	}
}
