package domain

import (
	"errors"
	"math/rand"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// FinalizeOrder fixes the payout queue from the current member set. With
// RandomizeOrder the queue is an unbiased shuffle drawn from rng, otherwise
// it preserves join order. Once the queue is set the call is a no-op;
// members joining later are never added to it.
func (c *Circle) FinalizeOrder(caller string, rng *rand.Rand, at time.Time) error {
	caller, err := normalizeIdentity(caller)
	if err != nil {
		return err
	}
	if caller != c.Admin {
		return apperrors.New(apperrors.CodeUnauthorized, "only the circle admin can finalize the payout order")
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	if len(c.PayoutQueue) != 0 {
		return nil
	}

	queue := make([]string, len(c.Members))
	for i, member := range c.Members {
		queue[i] = member.Identity
	}
	if c.RandomizeOrder {
		if rng == nil {
			return errors.New("domain: randomized circle needs a randomness source")
		}
		shuffle(queue, rng)
	}

	c.PayoutQueue = queue
	c.UpdatedAt = at.UTC()
	return nil
}

// shuffle permutes queue in place with a Fisher-Yates walk so every
// permutation is equally likely under a uniform rng.
func shuffle(queue []string, rng *rand.Rand) {
	for i := len(queue) - 1; i >= 1; i-- {
		j := rng.Intn(i + 1)
		queue[i], queue[j] = queue[j], queue[i]
	}
}

// ProcessPayout records a disbursement of one contribution to recipient.
// Each member is paid at most once; the queue order is advisory and the
// admin picks the recipient explicitly.
func (c *Circle) ProcessPayout(caller, recipient string, at time.Time) error {
	caller, err := normalizeIdentity(caller)
	if err != nil {
		return err
	}
	recipient, err = normalizeIdentity(recipient)
	if err != nil {
		return err
	}
	if caller != c.Admin {
		return apperrors.New(apperrors.CodeUnauthorized, "only the circle admin can process payouts")
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	i := c.MemberIndex(recipient)
	if i < 0 {
		return apperrors.WithMetadata(apperrors.CodeNotMember, "not a member of this circle",
			map[string]string{"Identity": recipient})
	}
	if c.Members[i].ReceivedPayout {
		return apperrors.WithMetadata(apperrors.CodeUnauthorized, "the recipient has already received a payout",
			map[string]string{"Recipient": recipient, "Reason": "recipient_already_paid"})
	}

	c.Members[i].ReceivedPayout = true
	c.CurrentPayoutIndex++
	c.TotalVolumeDistributed += c.Contribution
	c.UpdatedAt = at.UTC()
	return nil
}
