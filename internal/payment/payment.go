// Package payment defines the asset-transfer boundary. The circle engine
// tracks entitlement only; moving real value between accounts is delegated
// to a Transferrer supplied by the host.
package payment

import (
	"context"
	"fmt"
	"log"
)

// Transferrer moves amount from one account to another. Implementations must
// be all-or-nothing: on error no value has moved.
type Transferrer interface {
	Transfer(ctx context.Context, from, to string, amount int64) error
}

// PoolAccount names the ledger account holding a circle's pooled funds.
func PoolAccount(circleID uint64) string {
	return fmt.Sprintf("circle/%d", circleID)
}

// LogTransferrer records transfers to the process log without moving value.
// It is the default collaborator for deployments without a payment backend.
type LogTransferrer struct{}

// Transfer implements Transferrer.
func (LogTransferrer) Transfer(ctx context.Context, from, to string, amount int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Printf("transfer %d from %s to %s", amount, from, to)
	return nil
}
