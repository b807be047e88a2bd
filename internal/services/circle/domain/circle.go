// Package domain implements the circle lifecycle state machine: enrollment,
// payout scheduling, dissolution voting, and pro-rata settlement. All
// operations mutate an in-memory Circle copy; persistence and per-circle
// serialization belong to the engine layer.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// MaxMembers caps enrollment per circle.
const MaxMembers = 50

// Member is one enrolled participant with their payout flag and ledger entry.
type Member struct {
	Identity         string
	ReceivedPayout   bool
	ContributionPaid int64
}

// Circle is one rotating-savings pooling group. Contribution, Admin, and the
// queue policy are immutable after creation; Dissolved is one-way.
type Circle struct {
	ID                     uint64
	Admin                  string
	Contribution           int64
	Members                []Member
	PayoutQueue            []string
	CycleNumber            uint32
	CurrentPayoutIndex     uint32
	TotalVolumeDistributed int64
	DissolutionVotes       []string
	Dissolved              bool
	RandomizeOrder         bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// CreateCircleInput carries the immutable parameters chosen at creation.
type CreateCircleInput struct {
	Admin          string
	Contribution   int64
	RandomizeOrder bool
}

// NewCircle constructs an empty circle with the given id. The admin is not
// enrolled automatically; they join like any other member.
func NewCircle(id uint64, input CreateCircleInput, at time.Time) (Circle, error) {
	admin := strings.TrimSpace(input.Admin)
	if admin == "" {
		return Circle{}, apperrors.New(apperrors.CodeCircleAdminRequired, "circle admin is required")
	}
	if input.Contribution <= 0 {
		return Circle{}, apperrors.WithMetadata(
			apperrors.CodeCircleContributionInvalid,
			"contribution must be greater than zero",
			map[string]string{"Contribution": fmt.Sprintf("%d", input.Contribution)},
		)
	}

	at = at.UTC()
	return Circle{
		ID:             id,
		Admin:          admin,
		Contribution:   input.Contribution,
		CycleNumber:    1,
		RandomizeOrder: input.RandomizeOrder,
		CreatedAt:      at,
		UpdatedAt:      at,
	}, nil
}

// MemberIndex returns the position of identity in the member list, or -1.
func (c *Circle) MemberIndex(identity string) int {
	for i, member := range c.Members {
		if member.Identity == identity {
			return i
		}
	}
	return -1
}

// IsMember reports whether identity is enrolled.
func (c *Circle) IsMember(identity string) bool {
	return c.MemberIndex(identity) >= 0
}

// HasVoted reports whether identity already voted to dissolve.
func (c *Circle) HasVoted(identity string) bool {
	for _, vote := range c.DissolutionVotes {
		if vote == identity {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to callers.
func (c Circle) Clone() Circle {
	out := c
	out.Members = append([]Member(nil), c.Members...)
	out.PayoutQueue = append([]string(nil), c.PayoutQueue...)
	out.DissolutionVotes = append([]string(nil), c.DissolutionVotes...)
	return out
}

// Validate checks the structural invariants that must hold after every
// committed operation. A violation indicates an engine or storage bug, never
// a caller mistake.
func (c *Circle) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("circle %d: admin is empty", c.ID)
	}
	if c.Contribution <= 0 {
		return fmt.Errorf("circle %d: contribution %d is not positive", c.ID, c.Contribution)
	}
	if c.CycleNumber < 1 {
		return fmt.Errorf("circle %d: cycle number %d is below 1", c.ID, c.CycleNumber)
	}
	if len(c.Members) > MaxMembers {
		return fmt.Errorf("circle %d: %d members exceeds cap %d", c.ID, len(c.Members), MaxMembers)
	}

	seen := make(map[string]struct{}, len(c.Members))
	paid := uint32(0)
	for _, member := range c.Members {
		if strings.TrimSpace(member.Identity) == "" {
			return fmt.Errorf("circle %d: member identity is empty", c.ID)
		}
		if _, dup := seen[member.Identity]; dup {
			return fmt.Errorf("circle %d: duplicate member %q", c.ID, member.Identity)
		}
		seen[member.Identity] = struct{}{}
		if member.ReceivedPayout {
			paid++
		}
	}

	// The queue is a permutation of the member set at finalize time, so
	// members enrolled afterwards may outnumber it. Every entry must still
	// be a distinct current member.
	queued := make(map[string]struct{}, len(c.PayoutQueue))
	for _, identity := range c.PayoutQueue {
		if _, ok := seen[identity]; !ok {
			return fmt.Errorf("circle %d: payout queue contains non-member %q", c.ID, identity)
		}
		if _, dup := queued[identity]; dup {
			return fmt.Errorf("circle %d: payout queue repeats %q", c.ID, identity)
		}
		queued[identity] = struct{}{}
	}

	if c.CurrentPayoutIndex != paid {
		return fmt.Errorf("circle %d: payout index %d does not match %d paid members", c.ID, c.CurrentPayoutIndex, paid)
	}
	if c.TotalVolumeDistributed != int64(c.CurrentPayoutIndex)*c.Contribution {
		return fmt.Errorf("circle %d: distributed volume %d does not match %d payouts of %d", c.ID, c.TotalVolumeDistributed, c.CurrentPayoutIndex, c.Contribution)
	}

	votes := make(map[string]struct{}, len(c.DissolutionVotes))
	for _, vote := range c.DissolutionVotes {
		if _, ok := seen[vote]; !ok {
			return fmt.Errorf("circle %d: dissolution vote from non-member %q", c.ID, vote)
		}
		if _, dup := votes[vote]; dup {
			return fmt.Errorf("circle %d: duplicate dissolution vote %q", c.ID, vote)
		}
		votes[vote] = struct{}{}
	}

	return nil
}

func normalizeIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", apperrors.New(apperrors.CodeIdentityRequired, "identity is required")
	}
	return identity, nil
}
