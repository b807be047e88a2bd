package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
	"github.com/osusu/osusu/internal/services/circle/storage"
	"github.com/osusu/osusu/internal/services/circle/storage/sqlite"
)

var engineTime = time.Date(2026, time.August, 1, 12, 0, 0, 0, time.UTC)

type transferCall struct {
	from   string
	to     string
	amount int64
}

type recordingTransferrer struct {
	calls []transferCall
	err   error
}

func (r *recordingTransferrer) Transfer(ctx context.Context, from, to string, amount int64) error {
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, transferCall{from: from, to: to, amount: amount})
	return nil
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Store == nil {
		store, err := sqlite.Open(t.TempDir() + "/circles.db")
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		cfg.Store = store
	}
	if cfg.Seed == nil {
		cfg.Seed = func() (int64, error) { return 42, nil }
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return engineTime }
	}
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func TestCreateAssignsSequentialIDs(t *testing.T) {
	eng := newTestEngine(t, Config{})

	for want := uint64(1); want <= 3; want++ {
		circle, err := eng.Create(context.Background(), CreateInput{
			Admin:        fmt.Sprintf("admin-%d", want),
			Contribution: 100,
		})
		if err != nil {
			t.Fatalf("create circle: %v", err)
		}
		if circle.ID != want {
			t.Fatalf("circle id = %d, want %d", circle.ID, want)
		}
		if circle.CycleNumber != 1 {
			t.Fatalf("cycle_number = %d, want 1", circle.CycleNumber)
		}
	}
}

func TestGetNotFound(t *testing.T) {
	eng := newTestEngine(t, Config{})

	_, err := eng.Get(context.Background(), 404)
	if !apperrors.IsCode(err, apperrors.CodeCircleNotFound) {
		t.Fatalf("get err = %v, want code %s", err, apperrors.CodeCircleNotFound)
	}
	if got := apperrors.GetMetadata(err)["ID"]; got != "404" {
		t.Fatalf("metadata ID = %q, want 404", got)
	}
}

func TestLifecycle(t *testing.T) {
	var events []Event
	eng := newTestEngine(t, Config{
		Publisher: PublisherFunc(func(event Event) { events = append(events, event) }),
	})
	ctx := context.Background()

	created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.ID

	for _, member := range []string{"A", "B", "C"} {
		if _, err := eng.Join(ctx, id, member); err != nil {
			t.Fatalf("join %s: %v", member, err)
		}
	}

	finalized, err := eng.FinalizeOrder(ctx, id, "admin")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	want := []string{"A", "B", "C"}
	for i, identity := range want {
		if finalized.PayoutQueue[i] != identity {
			t.Fatalf("payout queue = %v, want %v", finalized.PayoutQueue, want)
		}
	}

	paid, err := eng.ProcessPayout(ctx, id, "admin", "A")
	if err != nil {
		t.Fatalf("payout A: %v", err)
	}
	if paid.CurrentPayoutIndex != 1 || paid.TotalVolumeDistributed != 50 {
		t.Fatalf("payout accounting = %d/%d, want 1/50", paid.CurrentPayoutIndex, paid.TotalVolumeDistributed)
	}
	if _, err := eng.ProcessPayout(ctx, id, "admin", "A"); !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("repeat payout err = %v, want code %s", err, apperrors.CodeUnauthorized)
	}

	if _, err := eng.VoteDissolve(ctx, id, "A"); err != nil {
		t.Fatalf("vote A: %v", err)
	}
	voted, err := eng.VoteDissolve(ctx, id, "B")
	if err != nil {
		t.Fatalf("vote B: %v", err)
	}
	if !voted.Dissolved {
		t.Fatal("two of three votes should dissolve the circle")
	}

	withdrawals := map[string]int64{"A": 0, "B": 50, "C": 50}
	for member, wantRefund := range withdrawals {
		refund, err := eng.Withdraw(ctx, id, member)
		if err != nil {
			t.Fatalf("withdraw %s: %v", member, err)
		}
		if refund != wantRefund {
			t.Fatalf("withdraw %s = %d, want %d", member, refund, wantRefund)
		}
	}

	// The committed record reflects every step.
	final, err := eng.Get(ctx, id)
	if err != nil {
		t.Fatalf("get final circle: %v", err)
	}
	if !final.Dissolved {
		t.Fatal("final circle should be dissolved")
	}
	if err := final.Validate(); err != nil {
		t.Fatalf("validate final circle: %v", err)
	}

	// Withdrawals with nothing owed commit no event; everything else does.
	wantEvents := []string{OpCreate, OpJoin, OpJoin, OpJoin, OpFinalize, OpPayout, OpVote, OpVote, OpWithdraw, OpWithdraw}
	if len(events) != len(wantEvents) {
		t.Fatalf("events = %d, want %d", len(events), len(wantEvents))
	}
	for i, event := range events {
		if event.Type != wantEvents[i] {
			t.Fatalf("event[%d] = %s, want %s", i, event.Type, wantEvents[i])
		}
		if event.CircleID != id {
			t.Fatalf("event[%d] circle = %d, want %d", i, event.CircleID, id)
		}
	}
}

func TestFinalizeOrderSeedDeterminism(t *testing.T) {
	queueWithSeed := func(seed int64) []string {
		eng := newTestEngine(t, Config{
			Seed: func() (int64, error) { return seed, nil },
		})
		ctx := context.Background()

		created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100, RandomizeOrder: true})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		for i := 0; i < 6; i++ {
			if _, err := eng.Join(ctx, created.ID, fmt.Sprintf("member-%d", i)); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		finalized, err := eng.FinalizeOrder(ctx, created.ID, "admin")
		if err != nil {
			t.Fatalf("finalize: %v", err)
		}
		return finalized.PayoutQueue
	}

	first := queueWithSeed(7)
	second := queueWithSeed(7)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different queues: %v vs %v", first, second)
		}
	}
}

func TestJoinAfterFinalizeCommits(t *testing.T) {
	eng := newTestEngine(t, Config{})
	ctx := context.Background()

	created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	id := created.ID
	for _, member := range []string{"A", "B"} {
		if _, err := eng.Join(ctx, id, member); err != nil {
			t.Fatalf("join %s: %v", member, err)
		}
	}
	finalized, err := eng.FinalizeOrder(ctx, id, "admin")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	queue := finalized.PayoutQueue

	// Enrollment stays open after the queue is set; the queue keeps its
	// finalize-time membership.
	joined, err := eng.Join(ctx, id, "late")
	if err != nil {
		t.Fatalf("join after finalize: %v", err)
	}
	if len(joined.Members) != 3 {
		t.Fatalf("member count = %d, want 3", len(joined.Members))
	}
	if len(joined.PayoutQueue) != len(queue) {
		t.Fatalf("queue length = %d, want %d", len(joined.PayoutQueue), len(queue))
	}

	refinalized, err := eng.FinalizeOrder(ctx, id, "admin")
	if err != nil {
		t.Fatalf("repeat finalize: %v", err)
	}
	for i := range queue {
		if refinalized.PayoutQueue[i] != queue[i] {
			t.Fatalf("repeat finalize changed queue: %v vs %v", refinalized.PayoutQueue, queue)
		}
	}

	stored, err := eng.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !stored.IsMember("late") {
		t.Fatal("late joiner did not persist")
	}
	if len(stored.PayoutQueue) != len(queue) {
		t.Fatalf("stored queue length = %d, want %d", len(stored.PayoutQueue), len(queue))
	}
}

func TestListDefaultsPageSize(t *testing.T) {
	eng := newTestEngine(t, Config{})
	ctx := context.Background()

	for i := 0; i < defaultPageSize+5; i++ {
		if _, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := eng.List(ctx, storage.ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Circles) != defaultPageSize {
		t.Fatalf("page size = %d, want %d", len(page.Circles), defaultPageSize)
	}
	if page.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	if _, err := eng.List(ctx, storage.ListQuery{PageToken: "garbage"}); !apperrors.IsCode(err, apperrors.CodePageTokenInvalid) {
		t.Fatalf("list err = %v, want code %s", err, apperrors.CodePageTokenInvalid)
	}
}

func TestDeposit(t *testing.T) {
	transferrer := &recordingTransferrer{}
	eng := newTestEngine(t, Config{Transferrer: transferrer})
	ctx := context.Background()

	created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.Join(ctx, created.ID, "alice"); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := eng.Deposit(ctx, created.ID, "alice", 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(transferrer.calls) != 1 {
		t.Fatalf("transfer calls = %d, want 1", len(transferrer.calls))
	}
	call := transferrer.calls[0]
	if call.from != "alice" || call.to != fmt.Sprintf("circle/%d", created.ID) || call.amount != 100 {
		t.Fatalf("transfer call = %+v, want alice -> circle/%d of 100", call, created.ID)
	}

	if err := eng.Deposit(ctx, created.ID, "stranger", 100); !apperrors.IsCode(err, apperrors.CodeNotMember) {
		t.Fatalf("deposit err = %v, want code %s", err, apperrors.CodeNotMember)
	}

	transferrer.err = errors.New("ledger offline")
	err = eng.Deposit(ctx, created.ID, "alice", 100)
	if !apperrors.IsCode(err, apperrors.CodeTransferFailed) {
		t.Fatalf("deposit err = %v, want code %s", err, apperrors.CodeTransferFailed)
	}
}

func TestConcurrentJoins(t *testing.T) {
	eng := newTestEngine(t, Config{})
	ctx := context.Background()

	created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const joiners = 10
	var wg sync.WaitGroup
	errs := make(chan error, joiners)
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := eng.Join(ctx, created.ID, fmt.Sprintf("member-%d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent join: %v", err)
	}

	circle, err := eng.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(circle.Members) != joiners {
		t.Fatalf("members = %d, want %d", len(circle.Members), joiners)
	}
	if err := circle.Validate(); err != nil {
		t.Fatalf("validate after concurrent joins: %v", err)
	}

	eng.mu.Lock()
	held := len(eng.locks)
	eng.mu.Unlock()
	if held != 0 {
		t.Fatalf("lock map holds %d idle entries, want 0", held)
	}
}

func TestLockMapDropsIdleEntries(t *testing.T) {
	eng := newTestEngine(t, Config{})
	ctx := context.Background()

	// Mutations on missing ids must not leave lock entries behind either.
	for id := uint64(100); id < 110; id++ {
		if _, err := eng.Join(ctx, id, "ghost"); !apperrors.IsCode(err, apperrors.CodeCircleNotFound) {
			t.Fatalf("join missing circle err = %v, want code %s", err, apperrors.CodeCircleNotFound)
		}
	}

	created, err := eng.Create(ctx, CreateInput{Admin: "admin", Contribution: 100})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := eng.Join(ctx, created.ID, "member"); err != nil {
		t.Fatalf("join: %v", err)
	}

	eng.mu.Lock()
	held := len(eng.locks)
	eng.mu.Unlock()
	if held != 0 {
		t.Fatalf("lock map holds %d idle entries, want 0", held)
	}
}
