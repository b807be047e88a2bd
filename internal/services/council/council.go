// Package council implements threshold-approval payout gating: a fixed set
// of elders collects approvals, and once the count reaches the threshold the
// pending payout may be executed and the approvals cleared for the next one.
package council

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// Council is one approval group with a fixed elder set and threshold.
type Council struct {
	ID        uint64
	Elders    []string
	Threshold uint32
	Approvals []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCouncil constructs a council from the given elder set. The threshold
// must be reachable: at least 1 and at most the number of elders.
func NewCouncil(id uint64, elders []string, threshold uint32, at time.Time) (Council, error) {
	cleaned := make([]string, 0, len(elders))
	seen := make(map[string]struct{}, len(elders))
	for _, elder := range elders {
		elder = strings.TrimSpace(elder)
		if elder == "" {
			return Council{}, apperrors.New(apperrors.CodeIdentityRequired, "elder identity is required")
		}
		if _, dup := seen[elder]; dup {
			return Council{}, apperrors.WithMetadata(apperrors.CodeCouncilThresholdInvalid,
				"elders must be unique", map[string]string{"Elder": elder})
		}
		seen[elder] = struct{}{}
		cleaned = append(cleaned, elder)
	}
	if threshold < 1 || int(threshold) > len(cleaned) {
		return Council{}, apperrors.WithMetadata(apperrors.CodeCouncilThresholdInvalid,
			"threshold must be between 1 and the number of elders",
			map[string]string{
				"Threshold": fmt.Sprintf("%d", threshold),
				"Elders":    fmt.Sprintf("%d", len(cleaned)),
			})
	}

	at = at.UTC()
	return Council{
		ID:        id,
		Elders:    cleaned,
		Threshold: threshold,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

// IsElder reports whether identity belongs to the elder set.
func (c *Council) IsElder(identity string) bool {
	for _, elder := range c.Elders {
		if elder == identity {
			return true
		}
	}
	return false
}

// HasApproved reports whether identity already approved the pending payout.
func (c *Council) HasApproved(identity string) bool {
	for _, approval := range c.Approvals {
		if approval == identity {
			return true
		}
	}
	return false
}

// Approved reports whether approvals have reached the threshold.
func (c *Council) Approved() bool {
	return uint32(len(c.Approvals)) >= c.Threshold
}

// Approve records an elder's approval of the pending payout. Repeat
// approvals succeed without effect.
func (c *Council) Approve(elder string, at time.Time) error {
	elder = strings.TrimSpace(elder)
	if elder == "" {
		return apperrors.New(apperrors.CodeIdentityRequired, "elder identity is required")
	}
	if !c.IsElder(elder) {
		return apperrors.WithMetadata(apperrors.CodeCouncilNotElder,
			"not an elder of this council", map[string]string{"Identity": elder})
	}
	if c.HasApproved(elder) {
		return nil
	}

	c.Approvals = append(c.Approvals, elder)
	c.UpdatedAt = at.UTC()
	return nil
}

// Clear executes the pending payout by resetting the approvals. It fails
// unless the caller is an elder and the threshold has been reached.
func (c *Council) Clear(caller string, at time.Time) error {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return apperrors.New(apperrors.CodeIdentityRequired, "caller identity is required")
	}
	if !c.IsElder(caller) {
		return apperrors.WithMetadata(apperrors.CodeCouncilNotElder,
			"not an elder of this council", map[string]string{"Identity": caller})
	}
	if !c.Approved() {
		return apperrors.WithMetadata(apperrors.CodeCouncilApprovalsInsufficient,
			"the payout has not collected enough approvals",
			map[string]string{
				"Required": fmt.Sprintf("%d", c.Threshold),
				"Approved": fmt.Sprintf("%d", len(c.Approvals)),
			})
	}

	c.Approvals = nil
	c.UpdatedAt = at.UTC()
	return nil
}

// Clone returns a deep copy safe to hand to callers.
func (c Council) Clone() Council {
	out := c
	out.Elders = append([]string(nil), c.Elders...)
	out.Approvals = append([]string(nil), c.Approvals...)
	return out
}
