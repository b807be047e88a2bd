// Package engine serializes circle operations: each call loads the addressed
// circle, applies one domain mutation under a per-circle lock, and commits
// the whole record back, so either every field change lands or none do.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
	"github.com/osusu/osusu/internal/platform/metrics"
	"github.com/osusu/osusu/internal/payment"
	"github.com/osusu/osusu/internal/random"
	"github.com/osusu/osusu/internal/services/circle/domain"
	"github.com/osusu/osusu/internal/services/circle/storage"
)

// Operation names used for events and metrics labels.
const (
	OpCreate   = "create"
	OpJoin     = "join"
	OpFinalize = "finalize"
	OpPayout   = "payout"
	OpPropose  = "propose_dissolution"
	OpVote     = "vote_dissolve"
	OpWithdraw = "withdraw"
	OpDeposit  = "deposit"
	OpGet      = "get"
	OpList     = "list"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Config wires the engine's collaborators. Store is required; the rest
// default to production implementations.
type Config struct {
	Store       storage.CircleStore
	Transferrer payment.Transferrer
	Publisher   Publisher
	// Seed supplies entropy for payout-order shuffles. Defaults to
	// random.NewSeed; tests inject a fixed value.
	Seed func() (int64, error)
	// Now supplies the clock for record timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Engine owns every circle mutation. All methods are safe for concurrent
// use; operations on the same circle are serialized.
type Engine struct {
	store       storage.CircleStore
	transferrer payment.Transferrer
	publisher   Publisher
	seed        func() (int64, error)
	now         func() time.Time

	mu    sync.Mutex
	locks map[uint64]*circleLock
}

// circleLock serializes operations on one circle id. refs counts holders and
// waiters so idle entries can leave the map.
type circleLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an engine from cfg.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	e := &Engine{
		store:       cfg.Store,
		transferrer: cfg.Transferrer,
		publisher:   cfg.Publisher,
		seed:        cfg.Seed,
		now:         cfg.Now,
		locks:       make(map[uint64]*circleLock),
	}
	if e.transferrer == nil {
		e.transferrer = payment.LogTransferrer{}
	}
	if e.seed == nil {
		e.seed = random.NewSeed
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// CreateInput carries the caller-chosen parameters for a new circle.
type CreateInput struct {
	Admin          string
	Contribution   int64
	RandomizeOrder bool
}

// Create allocates the next circle id and persists an empty circle.
func (e *Engine) Create(ctx context.Context, input CreateInput) (domain.Circle, error) {
	id, err := e.store.NextCircleID(ctx)
	if err != nil {
		return domain.Circle{}, e.observe(OpCreate, fmt.Errorf("allocate circle id: %w", err))
	}

	at := e.now()
	circle, err := domain.NewCircle(id, domain.CreateCircleInput{
		Admin:          input.Admin,
		Contribution:   input.Contribution,
		RandomizeOrder: input.RandomizeOrder,
	}, at)
	if err != nil {
		return domain.Circle{}, e.observe(OpCreate, err)
	}
	if err := e.store.CreateCircle(ctx, circle); err != nil {
		return domain.Circle{}, e.observe(OpCreate, fmt.Errorf("persist circle %d: %w", id, err))
	}

	e.publish(Event{Type: OpCreate, CircleID: id, Actor: circle.Admin, Circle: circle.Clone(), At: at})
	return circle, e.observe(OpCreate, nil)
}

// Get returns a snapshot of one circle.
func (e *Engine) Get(ctx context.Context, id uint64) (domain.Circle, error) {
	circle, err := e.load(ctx, id)
	return circle, e.observe(OpGet, err)
}

// List returns one page of circles. Zero page size defaults to 20, capped
// at 100.
func (e *Engine) List(ctx context.Context, query storage.ListQuery) (storage.CirclePage, error) {
	if query.PageSize <= 0 {
		query.PageSize = defaultPageSize
	}
	if query.PageSize > maxPageSize {
		query.PageSize = maxPageSize
	}

	page, err := e.store.ListCircles(ctx, query)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidPageToken) {
			return storage.CirclePage{}, e.observe(OpList,
				apperrors.New(apperrors.CodePageTokenInvalid, "the page token is not valid"))
		}
		return storage.CirclePage{}, e.observe(OpList, fmt.Errorf("list circles: %w", err))
	}
	return page, e.observe(OpList, nil)
}

// Join enrolls the caller in the circle.
func (e *Engine) Join(ctx context.Context, id uint64, caller string) (domain.Circle, error) {
	return e.mutate(ctx, OpJoin, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		if err := circle.Join(caller, at); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	})
}

// FinalizeOrder fixes the payout queue. Repeat calls are no-ops.
func (e *Engine) FinalizeOrder(ctx context.Context, id uint64, caller string) (domain.Circle, error) {
	return e.mutate(ctx, OpFinalize, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		wasEmpty := len(circle.PayoutQueue) == 0

		var rng *rand.Rand
		if circle.RandomizeOrder && wasEmpty {
			seed, err := e.seed()
			if err != nil {
				return false, 0, fmt.Errorf("seed payout shuffle: %w", err)
			}
			rng = rand.New(rand.NewSource(seed))
		}
		if err := circle.FinalizeOrder(caller, rng, at); err != nil {
			return false, 0, err
		}
		return wasEmpty, 0, nil
	})
}

// ProcessPayout disburses one contribution to recipient, at most once per
// member.
func (e *Engine) ProcessPayout(ctx context.Context, id uint64, caller, recipient string) (domain.Circle, error) {
	circle, err := e.mutate(ctx, OpPayout, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		if err := circle.ProcessPayout(caller, recipient, at); err != nil {
			return false, 0, err
		}
		return true, circle.Contribution, nil
	})
	if err == nil {
		metrics.VolumeDistributed.Add(float64(circle.Contribution))
	}
	return circle, err
}

// ProposeDissolution records the caller's dissolution proposal. Repeat
// proposals succeed without effect.
func (e *Engine) ProposeDissolution(ctx context.Context, id uint64, caller string) (domain.Circle, error) {
	return e.mutate(ctx, OpPropose, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		votes := len(circle.DissolutionVotes)
		if err := circle.ProposeDissolution(caller, at); err != nil {
			return false, 0, err
		}
		return len(circle.DissolutionVotes) != votes, 0, nil
	})
}

// VoteDissolve casts a dissolution vote; a strict majority dissolves the
// circle.
func (e *Engine) VoteDissolve(ctx context.Context, id uint64, caller string) (domain.Circle, error) {
	return e.mutate(ctx, OpVote, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		if err := circle.VoteDissolve(caller, at); err != nil {
			return false, 0, err
		}
		return true, 0, nil
	})
}

// Withdraw settles the caller's pro-rata refund after dissolution and
// returns the amount owed.
func (e *Engine) Withdraw(ctx context.Context, id uint64, caller string) (int64, error) {
	var refund int64
	_, err := e.mutate(ctx, OpWithdraw, id, caller, func(circle *domain.Circle, at time.Time) (bool, int64, error) {
		amount, err := circle.Withdraw(caller, at)
		if err != nil {
			return false, 0, err
		}
		refund = amount
		return amount > 0, amount, nil
	})
	if err != nil {
		return 0, err
	}
	return refund, nil
}

// Deposit moves amount from the caller to the circle's pool account through
// the treasury collaborator. The record itself is not mutated; the ledger
// tracks committed stakes, not asset movement.
func (e *Engine) Deposit(ctx context.Context, id uint64, caller string, amount int64) error {
	unlock := e.lockCircle(id)
	defer unlock()

	circle, err := e.load(ctx, id)
	if err != nil {
		return e.observe(OpDeposit, err)
	}
	if err := circle.AuthorizeDeposit(caller, amount); err != nil {
		return e.observe(OpDeposit, err)
	}
	if err := e.transferrer.Transfer(ctx, caller, payment.PoolAccount(id), amount); err != nil {
		return e.observe(OpDeposit, apperrors.Wrap(apperrors.CodeTransferFailed,
			"the deposit transfer failed", err))
	}

	e.publish(Event{Type: OpDeposit, CircleID: id, Actor: caller, Amount: amount, Circle: circle.Clone(), At: e.now()})
	return e.observe(OpDeposit, nil)
}

// mutate runs one load-validate-mutate-commit cycle under the circle's lock.
// The closure reports whether it changed the record and the amount, if any,
// to attach to the published event.
func (e *Engine) mutate(ctx context.Context, op string, id uint64, actor string, fn func(circle *domain.Circle, at time.Time) (bool, int64, error)) (domain.Circle, error) {
	unlock := e.lockCircle(id)
	defer unlock()

	circle, err := e.load(ctx, id)
	if err != nil {
		return domain.Circle{}, e.observe(op, err)
	}

	at := e.now()
	changed, amount, err := fn(&circle, at)
	if err != nil {
		return domain.Circle{}, e.observe(op, err)
	}
	if !changed {
		return circle, e.observe(op, nil)
	}

	if err := circle.Validate(); err != nil {
		return domain.Circle{}, e.observe(op, fmt.Errorf("%s left circle %d inconsistent: %w", op, id, err))
	}
	if err := e.store.UpdateCircle(ctx, circle); err != nil {
		return domain.Circle{}, e.observe(op, fmt.Errorf("persist circle %d: %w", id, err))
	}

	e.publish(Event{Type: op, CircleID: id, Actor: actor, Amount: amount, Circle: circle.Clone(), At: at})
	return circle, e.observe(op, nil)
}

func (e *Engine) load(ctx context.Context, id uint64) (domain.Circle, error) {
	circle, err := e.store.GetCircle(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Circle{}, apperrors.WithMetadata(apperrors.CodeCircleNotFound,
				"circle not found", map[string]string{"ID": strconv.FormatUint(id, 10)})
		}
		return domain.Circle{}, fmt.Errorf("load circle %d: %w", id, err)
	}
	return circle, nil
}

// lockCircle blocks until the caller holds the circle's lock and returns the
// unlock function. The map entry is dropped once the last holder releases, so
// the map tracks in-flight circles rather than every id ever addressed.
func (e *Engine) lockCircle(id uint64) func() {
	e.mu.Lock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &circleLock{}
		e.locks[id] = lock
	}
	lock.refs++
	e.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) publish(event Event) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(event)
}

// observe records the operation outcome and passes the error through.
func (e *Engine) observe(op string, err error) error {
	if err == nil {
		metrics.ObserveOperation(op, "")
		return nil
	}
	metrics.ObserveOperation(op, string(apperrors.GetCode(err)))
	return err
}
