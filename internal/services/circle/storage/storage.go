// Package storage defines persistence contracts for circle state.
package storage

import (
	"context"
	"errors"

	"github.com/osusu/osusu/internal/services/circle/domain"
)

// ErrNotFound indicates a requested circle record is missing.
var ErrNotFound = errors.New("record not found")

// ErrInvalidPageToken indicates a page token that was not issued by a
// previous list call.
var ErrInvalidPageToken = errors.New("invalid page token")

// CircleFilter narrows a circle listing. Nil fields match everything.
type CircleFilter struct {
	Dissolved      *bool
	RandomizeOrder *bool
	Admin          *string
	Member         *string
}

// Matches reports whether circle satisfies every set field.
func (f CircleFilter) Matches(circle domain.Circle) bool {
	if f.Dissolved != nil && circle.Dissolved != *f.Dissolved {
		return false
	}
	if f.RandomizeOrder != nil && circle.RandomizeOrder != *f.RandomizeOrder {
		return false
	}
	if f.Admin != nil && circle.Admin != *f.Admin {
		return false
	}
	if f.Member != nil && !circle.IsMember(*f.Member) {
		return false
	}
	return true
}

// ListQuery selects one page of circles ordered by ascending id.
type ListQuery struct {
	Filter    CircleFilter
	PageSize  int
	PageToken string
}

// CirclePage holds one page of circles and the token for the next page.
type CirclePage struct {
	Circles       []domain.Circle
	NextPageToken string
}

// CircleStore persists circle records and allocates their identifiers.
type CircleStore interface {
	// NextCircleID returns the next identifier, starting at 1 and strictly
	// increasing. Identifiers are never reused.
	NextCircleID(ctx context.Context) (uint64, error)
	CreateCircle(ctx context.Context, circle domain.Circle) error
	GetCircle(ctx context.Context, id uint64) (domain.Circle, error)
	UpdateCircle(ctx context.Context, circle domain.Circle) error
	ListCircles(ctx context.Context, query ListQuery) (CirclePage, error)
	Close() error
}
