package i18n

import i18ncatalog "github.com/osusu/osusu/internal/platform/i18n/catalog"

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeUnknown                      = "UNKNOWN"
	CodeCircleNotFound               = "CIRCLE_NOT_FOUND"
	CodeCircleAdminRequired          = "CIRCLE_ADMIN_REQUIRED"
	CodeCircleContributionInvalid    = "CIRCLE_CONTRIBUTION_INVALID"
	CodeAlreadyDissolved             = "ALREADY_DISSOLVED"
	CodeNotDissolved                 = "NOT_DISSOLVED"
	CodeIdentityRequired             = "IDENTITY_REQUIRED"
	CodeAlreadyJoined                = "ALREADY_JOINED"
	CodeMaxMembersReached            = "MAX_MEMBERS_REACHED"
	CodeNotMember                    = "NOT_MEMBER"
	CodeUnauthorized                 = "UNAUTHORIZED"
	CodeAlreadyVoted                 = "ALREADY_VOTED"
	CodeTransferFailed               = "TRANSFER_FAILED"
	CodeGrantInvalid                 = "GRANT_INVALID"
	CodeGrantExpired                 = "GRANT_EXPIRED"
	CodeGrantMismatch                = "GRANT_MISMATCH"
	CodeCouncilNotFound              = "COUNCIL_NOT_FOUND"
	CodeCouncilThresholdInvalid      = "COUNCIL_THRESHOLD_INVALID"
	CodeCouncilNotElder              = "COUNCIL_NOT_ELDER"
	CodeCouncilApprovalsInsufficient = "COUNCIL_APPROVALS_INSUFFICIENT"
	CodeListFilterInvalid            = "LIST_FILTER_INVALID"
	CodePageTokenInvalid             = "PAGE_TOKEN_INVALID"
	CodeRequestInvalid               = "REQUEST_INVALID"
	CodeNotFound                     = "NOT_FOUND"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		CodeUnknown: "An unexpected error occurred",

		// Circle errors
		CodeCircleNotFound:            "The requested circle was not found",
		CodeCircleAdminRequired:       "A circle admin identity is required",
		CodeCircleContributionInvalid: "Contribution amount must be greater than zero",
		CodeAlreadyDissolved:          "The circle has been dissolved",
		CodeNotDissolved:              "The circle has not been dissolved",

		// Membership errors
		CodeIdentityRequired:  "An identity is required",
		CodeAlreadyJoined:     "{{.Member}} is already a member of this circle",
		CodeMaxMembersReached: "The circle is full ({{.Max}} members)",
		CodeNotMember:         "{{.Identity}} is not a member of this circle",

		// Payout and governance errors
		CodeUnauthorized: "The caller is not allowed to perform this operation",
		CodeAlreadyVoted: "{{.Voter}} has already voted to dissolve this circle",

		// Settlement errors
		CodeTransferFailed: "The funds transfer could not be completed",

		// Grant errors
		CodeGrantInvalid:  "The access grant is invalid",
		CodeGrantExpired:  "The access grant has expired",
		CodeGrantMismatch: "The access grant {{.Field}} does not match",

		// Council errors
		CodeCouncilNotFound:              "The requested council was not found",
		CodeCouncilThresholdInvalid:      "Council threshold must be between 1 and the elder count",
		CodeCouncilNotElder:              "{{.Identity}} is not an elder of this council",
		CodeCouncilApprovalsInsufficient: "Payout needs {{.Required}} approvals, has {{.Approved}}",

		// Listing errors
		CodeListFilterInvalid: "The list filter expression is invalid",
		CodePageTokenInvalid:  "The page token is invalid",

		// Transport errors
		CodeRequestInvalid: "The request body is invalid",

		// Storage errors
		CodeNotFound: "The requested resource was not found",
	},
}

func init() {
	RegisterCatalog(i18ncatalog.BaseLocale, enUSCatalog)
}
