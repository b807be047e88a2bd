// Package storage defines persistence contracts for council state.
package storage

import (
	"context"
	"errors"

	"github.com/osusu/osusu/internal/services/council"
)

// ErrNotFound indicates a requested council record is missing.
var ErrNotFound = errors.New("record not found")

// CouncilStore persists council records and allocates their identifiers.
type CouncilStore interface {
	NextCouncilID(ctx context.Context) (uint64, error)
	CreateCouncil(ctx context.Context, record council.Council) error
	GetCouncil(ctx context.Context, id uint64) (council.Council, error)
	UpdateCouncil(ctx context.Context, record council.Council) error
	Close() error
}
