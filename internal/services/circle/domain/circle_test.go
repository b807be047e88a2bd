package domain

import (
	"fmt"
	"testing"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestCircle(t *testing.T, contribution int64, randomize bool, members ...string) Circle {
	t.Helper()

	circle, err := NewCircle(1, CreateCircleInput{
		Admin:          "admin",
		Contribution:   contribution,
		RandomizeOrder: randomize,
	}, testTime)
	if err != nil {
		t.Fatalf("NewCircle: %v", err)
	}
	for _, member := range members {
		if err := circle.Join(member, testTime); err != nil {
			t.Fatalf("Join(%q): %v", member, err)
		}
	}
	return circle
}

func TestNewCircle(t *testing.T) {
	t.Parallel()

	circle, err := NewCircle(7, CreateCircleInput{
		Admin:          "  alice  ",
		Contribution:   100,
		RandomizeOrder: true,
	}, testTime)
	if err != nil {
		t.Fatalf("NewCircle: %v", err)
	}

	if circle.ID != 7 {
		t.Errorf("ID = %d, want 7", circle.ID)
	}
	if circle.Admin != "alice" {
		t.Errorf("Admin = %q, want %q", circle.Admin, "alice")
	}
	if circle.CycleNumber != 1 {
		t.Errorf("CycleNumber = %d, want 1", circle.CycleNumber)
	}
	if !circle.RandomizeOrder {
		t.Error("RandomizeOrder = false, want true")
	}
	if len(circle.Members) != 0 || len(circle.PayoutQueue) != 0 || len(circle.DissolutionVotes) != 0 {
		t.Error("new circle should have no members, queue, or votes")
	}
	if circle.Dissolved {
		t.Error("new circle should not be dissolved")
	}
	if !circle.CreatedAt.Equal(testTime) || !circle.UpdatedAt.Equal(testTime) {
		t.Errorf("timestamps = %v/%v, want %v", circle.CreatedAt, circle.UpdatedAt, testTime)
	}
}

func TestNewCircleValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input CreateCircleInput
		code  apperrors.Code
	}{
		{
			name:  "missing admin",
			input: CreateCircleInput{Contribution: 100},
			code:  apperrors.CodeCircleAdminRequired,
		},
		{
			name:  "blank admin",
			input: CreateCircleInput{Admin: "   ", Contribution: 100},
			code:  apperrors.CodeCircleAdminRequired,
		},
		{
			name:  "zero contribution",
			input: CreateCircleInput{Admin: "alice"},
			code:  apperrors.CodeCircleContributionInvalid,
		},
		{
			name:  "negative contribution",
			input: CreateCircleInput{Admin: "alice", Contribution: -5},
			code:  apperrors.CodeCircleContributionInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewCircle(1, tt.input, testTime)
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("NewCircle error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false)
	later := testTime.Add(time.Minute)

	if err := circle.Join("bob", later); err != nil {
		t.Fatalf("Join: %v", err)
	}

	if len(circle.Members) != 1 {
		t.Fatalf("len(Members) = %d, want 1", len(circle.Members))
	}
	member := circle.Members[0]
	if member.Identity != "bob" {
		t.Errorf("Identity = %q, want %q", member.Identity, "bob")
	}
	if member.ReceivedPayout {
		t.Error("new member should not be marked as paid")
	}
	if member.ContributionPaid != 100 {
		t.Errorf("ContributionPaid = %d, want the committed stake 100", member.ContributionPaid)
	}
	if !circle.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", circle.UpdatedAt, later)
	}
}

func TestJoinDuplicate(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false, "bob")

	err := circle.Join("bob", testTime)
	if !apperrors.IsCode(err, apperrors.CodeAlreadyJoined) {
		t.Fatalf("Join error = %v, want code %s", err, apperrors.CodeAlreadyJoined)
	}
	if len(circle.Members) != 1 {
		t.Errorf("len(Members) = %d, want 1 after rejected join", len(circle.Members))
	}
}

func TestJoinCapacity(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false)
	for i := 0; i < MaxMembers-1; i++ {
		if err := circle.Join(fmt.Sprintf("member-%d", i), testTime); err != nil {
			t.Fatalf("Join(member-%d): %v", i, err)
		}
	}

	// The 50th member still fits.
	if err := circle.Join("last", testTime); err != nil {
		t.Fatalf("Join at capacity boundary: %v", err)
	}
	if len(circle.Members) != MaxMembers {
		t.Fatalf("len(Members) = %d, want %d", len(circle.Members), MaxMembers)
	}

	err := circle.Join("overflow", testTime)
	if !apperrors.IsCode(err, apperrors.CodeMaxMembersReached) {
		t.Fatalf("Join error = %v, want code %s", err, apperrors.CodeMaxMembersReached)
	}
	if len(circle.Members) != MaxMembers {
		t.Errorf("len(Members) = %d, want %d after rejected join", len(circle.Members), MaxMembers)
	}
}

func TestJoinDissolved(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false, "a")
	circle.Dissolved = true

	err := circle.Join("b", testTime)
	if !apperrors.IsCode(err, apperrors.CodeAlreadyDissolved) {
		t.Fatalf("Join error = %v, want code %s", err, apperrors.CodeAlreadyDissolved)
	}
}

func TestJoinEmptyIdentity(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false)

	err := circle.Join("   ", testTime)
	if !apperrors.IsCode(err, apperrors.CodeIdentityRequired) {
		t.Fatalf("Join error = %v, want code %s", err, apperrors.CodeIdentityRequired)
	}
}

func TestAuthorizeDeposit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity string
		amount   int64
		dissolve bool
		code     apperrors.Code
	}{
		{name: "member deposit", identity: "a", amount: 100},
		{name: "zero amount", identity: "a", amount: 0, code: apperrors.CodeCircleContributionInvalid},
		{name: "negative amount", identity: "a", amount: -1, code: apperrors.CodeCircleContributionInvalid},
		{name: "non-member", identity: "x", amount: 100, code: apperrors.CodeNotMember},
		{name: "dissolved", identity: "a", amount: 100, dissolve: true, code: apperrors.CodeAlreadyDissolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			circle := newTestCircle(t, 100, false, "a", "b")
			circle.Dissolved = tt.dissolve

			err := circle.AuthorizeDeposit(tt.identity, tt.amount)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("AuthorizeDeposit: %v", err)
				}
				return
			}
			if !apperrors.IsCode(err, tt.code) {
				t.Errorf("AuthorizeDeposit error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestClone(t *testing.T) {
	t.Parallel()

	circle := newTestCircle(t, 100, false, "a", "b")
	if err := circle.FinalizeOrder("admin", nil, testTime); err != nil {
		t.Fatalf("FinalizeOrder: %v", err)
	}
	if err := circle.ProposeDissolution("a", testTime); err != nil {
		t.Fatalf("ProposeDissolution: %v", err)
	}

	clone := circle.Clone()
	clone.Members[0].Identity = "mutated"
	clone.PayoutQueue[0] = "mutated"
	clone.DissolutionVotes[0] = "mutated"

	if circle.Members[0].Identity != "a" {
		t.Error("Clone shares member backing array")
	}
	if circle.PayoutQueue[0] != "a" {
		t.Error("Clone shares payout queue backing array")
	}
	if circle.DissolutionVotes[0] != "a" {
		t.Error("Clone shares vote backing array")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := newTestCircle(t, 100, false, "a", "b", "c")
	if err := valid.FinalizeOrder("admin", nil, testTime); err != nil {
		t.Fatalf("FinalizeOrder: %v", err)
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate on consistent circle: %v", err)
	}

	// A member enrolled after finalize leaves the queue shorter than the
	// member list; that is a legal state, not corruption.
	late := valid.Clone()
	if err := late.Join("d", testTime); err != nil {
		t.Fatalf("Join after finalize: %v", err)
	}
	if err := late.Validate(); err != nil {
		t.Fatalf("Validate with late joiner: %v", err)
	}

	tests := []struct {
		name    string
		corrupt func(c *Circle)
	}{
		{"duplicate member", func(c *Circle) { c.Members[1].Identity = "a" }},
		{"queue repeats member", func(c *Circle) { c.PayoutQueue[1] = c.PayoutQueue[0] }},
		{"queue non-member", func(c *Circle) { c.PayoutQueue[0] = "stranger" }},
		{"payout index drift", func(c *Circle) { c.CurrentPayoutIndex = 2 }},
		{"volume drift", func(c *Circle) { c.TotalVolumeDistributed = 1 }},
		{"vote from non-member", func(c *Circle) { c.DissolutionVotes = []string{"stranger"} }},
		{"zero cycle", func(c *Circle) { c.CycleNumber = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			circle := valid.Clone()
			tt.corrupt(&circle)
			if err := circle.Validate(); err == nil {
				t.Error("Validate accepted an inconsistent circle")
			}
		})
	}
}
