// Package service orchestrates council operations against a store, with the
// same load-mutate-commit discipline as the circle engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
	"github.com/osusu/osusu/internal/platform/metrics"
	"github.com/osusu/osusu/internal/services/council"
	"github.com/osusu/osusu/internal/services/council/storage"
)

const (
	opCreate  = "council_create"
	opApprove = "council_approve"
	opClear   = "council_clear"
	opGet     = "council_get"
)

// Service owns every council mutation. Methods are safe for concurrent use;
// operations on the same council are serialized.
type Service struct {
	store storage.CouncilStore
	now   func() time.Time

	mu    sync.Mutex
	locks map[uint64]*councilLock
}

// councilLock serializes operations on one council id. refs counts holders
// and waiters so idle entries can leave the map.
type councilLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a council service. A nil clock defaults to time.Now.
func New(store storage.CouncilStore, now func() time.Time) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("council service: store is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		store: store,
		now:   now,
		locks: make(map[uint64]*councilLock),
	}, nil
}

// Create allocates the next council id and persists a new council.
func (s *Service) Create(ctx context.Context, elders []string, threshold uint32) (council.Council, error) {
	id, err := s.store.NextCouncilID(ctx)
	if err != nil {
		return council.Council{}, s.observe(opCreate, fmt.Errorf("allocate council id: %w", err))
	}

	record, err := council.NewCouncil(id, elders, threshold, s.now())
	if err != nil {
		return council.Council{}, s.observe(opCreate, err)
	}
	if err := s.store.CreateCouncil(ctx, record); err != nil {
		return council.Council{}, s.observe(opCreate, fmt.Errorf("persist council %d: %w", id, err))
	}
	return record, s.observe(opCreate, nil)
}

// Get returns a snapshot of one council.
func (s *Service) Get(ctx context.Context, id uint64) (council.Council, error) {
	record, err := s.load(ctx, id)
	return record, s.observe(opGet, err)
}

// Approve records an elder's approval of the pending payout.
func (s *Service) Approve(ctx context.Context, id uint64, elder string) (council.Council, error) {
	return s.mutate(ctx, opApprove, id, func(record *council.Council, at time.Time) (bool, error) {
		approvals := len(record.Approvals)
		if err := record.Approve(elder, at); err != nil {
			return false, err
		}
		return len(record.Approvals) != approvals, nil
	})
}

// Clear executes the approved payout and resets the approvals.
func (s *Service) Clear(ctx context.Context, id uint64, caller string) (council.Council, error) {
	return s.mutate(ctx, opClear, id, func(record *council.Council, at time.Time) (bool, error) {
		if err := record.Clear(caller, at); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (s *Service) mutate(ctx context.Context, op string, id uint64, fn func(record *council.Council, at time.Time) (bool, error)) (council.Council, error) {
	unlock := s.lockCouncil(id)
	defer unlock()

	record, err := s.load(ctx, id)
	if err != nil {
		return council.Council{}, s.observe(op, err)
	}

	changed, err := fn(&record, s.now())
	if err != nil {
		return council.Council{}, s.observe(op, err)
	}
	if !changed {
		return record, s.observe(op, nil)
	}

	if err := s.store.UpdateCouncil(ctx, record); err != nil {
		return council.Council{}, s.observe(op, fmt.Errorf("persist council %d: %w", id, err))
	}
	return record, s.observe(op, nil)
}

func (s *Service) load(ctx context.Context, id uint64) (council.Council, error) {
	record, err := s.store.GetCouncil(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return council.Council{}, apperrors.WithMetadata(apperrors.CodeCouncilNotFound,
				"council not found", map[string]string{"ID": strconv.FormatUint(id, 10)})
		}
		return council.Council{}, fmt.Errorf("load council %d: %w", id, err)
	}
	return record, nil
}

// lockCouncil blocks until the caller holds the council's lock and returns
// the unlock function. Entries leave the map when the last holder releases.
func (s *Service) lockCouncil(id uint64) func() {
	s.mu.Lock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &councilLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Service) observe(op string, err error) error {
	if err == nil {
		metrics.ObserveOperation(op, "")
		return nil
	}
	metrics.ObserveOperation(op, string(apperrors.GetCode(err)))
	return err
}
