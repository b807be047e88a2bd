package domain

import (
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// ProposeDissolution records the proposer's intent to dissolve. Proposing is
// an idempotent vote: repeat calls succeed without effect, and the majority
// tally is left to VoteDissolve.
func (c *Circle) ProposeDissolution(proposer string, at time.Time) error {
	proposer, err := normalizeIdentity(proposer)
	if err != nil {
		return err
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	if !c.IsMember(proposer) {
		return apperrors.WithMetadata(apperrors.CodeNotMember, "not a member of this circle",
			map[string]string{"Identity": proposer})
	}
	if c.HasVoted(proposer) {
		return nil
	}

	c.DissolutionVotes = append(c.DissolutionVotes, proposer)
	c.UpdatedAt = at.UTC()
	return nil
}

// VoteDissolve casts a dissolution vote and flips the terminal flag once
// votes hold a strict majority of the current member count. Ties do not
// dissolve.
func (c *Circle) VoteDissolve(voter string, at time.Time) error {
	voter, err := normalizeIdentity(voter)
	if err != nil {
		return err
	}
	if c.Dissolved {
		return apperrors.New(apperrors.CodeAlreadyDissolved, "the circle has been dissolved")
	}
	if !c.IsMember(voter) {
		return apperrors.WithMetadata(apperrors.CodeNotMember, "not a member of this circle",
			map[string]string{"Identity": voter})
	}
	if c.HasVoted(voter) {
		return apperrors.WithMetadata(apperrors.CodeAlreadyVoted, "already voted to dissolve this circle",
			map[string]string{"Voter": voter})
	}

	c.DissolutionVotes = append(c.DissolutionVotes, voter)
	if len(c.DissolutionVotes)*2 > len(c.Members) {
		c.Dissolved = true
	}
	c.UpdatedAt = at.UTC()
	return nil
}

// Withdraw settles a member's pro-rata refund after dissolution: their
// remaining ledger balance net of one contribution if they were already paid
// out. A positive refund zeroes the ledger so it cannot be claimed twice; a
// zero or negative balance is reported as-is and leaves the circle untouched.
func (c *Circle) Withdraw(member string, at time.Time) (int64, error) {
	member, err := normalizeIdentity(member)
	if err != nil {
		return 0, err
	}
	if !c.Dissolved {
		return 0, apperrors.New(apperrors.CodeNotDissolved, "the circle has not been dissolved")
	}
	i := c.MemberIndex(member)
	if i < 0 {
		return 0, apperrors.WithMetadata(apperrors.CodeNotMember, "not a member of this circle",
			map[string]string{"Identity": member})
	}

	refundable := c.Members[i].ContributionPaid
	if c.Members[i].ReceivedPayout {
		refundable -= c.Contribution
	}
	if refundable <= 0 {
		return refundable, nil
	}

	c.Members[i].ContributionPaid = 0
	c.UpdatedAt = at.UTC()
	return refundable, nil
}
