package domain

import (
	"fmt"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// Join enrolls identity and credits their committed stake of one contribution
// to the ledger. Enrollment stays open for the life of the circle; only
// dissolution closes it.
func (c *Circle) Join(identity string, at time.Time) error {
	identity, err := normalizeIdentity(identity)
	if err != nil {
		return err
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	if c.IsMember(identity) {
		return apperrors.WithMetadata(apperrors.CodeAlreadyJoined, "already a member of this circle",
			map[string]string{"Member": identity})
	}
	if len(c.Members) >= MaxMembers {
		return apperrors.WithMetadata(apperrors.CodeMaxMembersReached, "the circle is full",
			map[string]string{"Max": fmt.Sprintf("%d", MaxMembers)})
	}

	c.Members = append(c.Members, Member{
		Identity:         identity,
		ContributionPaid: c.Contribution,
	})
	c.UpdatedAt = at.UTC()
	return nil
}

// AuthorizeDeposit checks that identity may move funds into the pool. The
// ledger itself is untouched; deposits are asset movement handled by the
// treasury collaborator, while the ledger tracks the committed stake credited
// at join time.
func (c *Circle) AuthorizeDeposit(identity string, amount int64) error {
	identity, err := normalizeIdentity(identity)
	if err != nil {
		return err
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	if amount <= 0 {
		return apperrors.WithMetadata(apperrors.CodeCircleContributionInvalid,
			"deposit amount must be greater than zero",
			map[string]string{"Contribution": fmt.Sprintf("%d", amount)})
	}
	if !c.IsMember(identity) {
		return apperrors.WithMetadata(apperrors.CodeNotMember, "not a member of this circle",
			map[string]string{"Identity": identity})
	}
	return nil
}
