// Package errors provides structured error handling with i18n support.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Circle errors
	CodeCircleNotFound            Code = "CIRCLE_NOT_FOUND"
	CodeCircleAdminRequired       Code = "CIRCLE_ADMIN_REQUIRED"
	CodeCircleContributionInvalid Code = "CIRCLE_CONTRIBUTION_INVALID"
	CodeAlreadyDissolved          Code = "ALREADY_DISSOLVED"
	CodeNotDissolved              Code = "NOT_DISSOLVED"

	// Membership errors
	CodeIdentityRequired  Code = "IDENTITY_REQUIRED"
	CodeAlreadyJoined     Code = "ALREADY_JOINED"
	CodeMaxMembersReached Code = "MAX_MEMBERS_REACHED"
	CodeNotMember         Code = "NOT_MEMBER"

	// Payout and governance errors.
	// CodeUnauthorized covers non-admin callers and repeat payouts to the
	// same member; both surface the same code on the wire.
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeAlreadyVoted Code = "ALREADY_VOTED"

	// Settlement errors
	CodeTransferFailed Code = "TRANSFER_FAILED"

	// Grant errors
	CodeGrantInvalid  Code = "GRANT_INVALID"
	CodeGrantExpired  Code = "GRANT_EXPIRED"
	CodeGrantMismatch Code = "GRANT_MISMATCH"

	// Council errors
	CodeCouncilNotFound              Code = "COUNCIL_NOT_FOUND"
	CodeCouncilThresholdInvalid      Code = "COUNCIL_THRESHOLD_INVALID"
	CodeCouncilNotElder              Code = "COUNCIL_NOT_ELDER"
	CodeCouncilApprovalsInsufficient Code = "COUNCIL_APPROVALS_INSUFFICIENT"

	// Listing errors
	CodeListFilterInvalid Code = "LIST_FILTER_INVALID"
	CodePageTokenInvalid  Code = "PAGE_TOKEN_INVALID"

	// Transport errors
	CodeRequestInvalid Code = "REQUEST_INVALID"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCircleAdminRequired,
		CodeCircleContributionInvalid,
		CodeIdentityRequired,
		CodeGrantInvalid,
		CodeGrantMismatch,
		CodeCouncilThresholdInvalid,
		CodeListFilterInvalid,
		CodePageTokenInvalid,
		CodeRequestInvalid:
		return codes.InvalidArgument

	// PermissionDenied - caller or target identity is not allowed
	case CodeUnauthorized,
		CodeNotMember,
		CodeCouncilNotElder:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodeMaxMembersReached,
		CodeAlreadyDissolved,
		CodeNotDissolved,
		CodeGrantExpired,
		CodeCouncilApprovalsInsufficient:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCircleNotFound,
		CodeCouncilNotFound:
		return codes.NotFound

	// AlreadyExists - idempotency and duplicate identity constraints
	case CodeAlreadyJoined,
		CodeAlreadyVoted:
		return codes.AlreadyExists

	// Unavailable - upstream treasury failures
	case CodeTransferFailed:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
