package domain

import "github.com/modelcontextprotocol/go-sdk/mcp"

// CircleCreateInput represents the MCP tool input for circle creation.
type CircleCreateInput struct {
	Contribution   int64 `json:"contribution" jsonschema:"fixed contribution per member in minor currency units"`
	RandomizeOrder bool  `json:"randomize_order,omitempty" jsonschema:"shuffle the payout queue when the order is finalized"`
}

// CircleGetInput represents the MCP tool input for fetching one circle.
type CircleGetInput struct {
	CircleID uint64 `json:"circle_id" jsonschema:"circle identifier"`
}

// CircleListInput represents the MCP tool input for listing circles.
type CircleListInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"optional filter over admin, member, dissolved, and randomize_order fields"`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum circles per page"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous listing"`
}

// CircleMemberEntry represents one enrolled member in MCP circle output.
type CircleMemberEntry struct {
	Identity         string `json:"identity" jsonschema:"member identity"`
	ReceivedPayout   bool   `json:"received_payout" jsonschema:"whether the member already received a payout this cycle"`
	ContributionPaid int64  `json:"contribution_paid" jsonschema:"total amount the member has paid in"`
}

// CircleResult represents the MCP tool output for a single circle.
type CircleResult struct {
	ID                     uint64              `json:"id" jsonschema:"circle identifier"`
	Admin                  string              `json:"admin" jsonschema:"identity of the circle admin"`
	Contribution           int64               `json:"contribution" jsonschema:"fixed contribution per member in minor currency units"`
	Members                []CircleMemberEntry `json:"members" jsonschema:"enrolled members"`
	PayoutQueue            []string            `json:"payout_queue" jsonschema:"finalized payout order, empty until finalized"`
	CycleNumber            uint32              `json:"cycle_number" jsonschema:"current rotation cycle"`
	CurrentPayoutIndex     uint32              `json:"current_payout_index" jsonschema:"position of the next recipient in the payout queue"`
	TotalVolumeDistributed int64               `json:"total_volume_distributed" jsonschema:"sum of all payouts to date"`
	Dissolved              bool                `json:"dissolved" jsonschema:"whether the circle has been dissolved"`
	RandomizeOrder         bool                `json:"randomize_order" jsonschema:"whether the payout order is shuffled at finalization"`
	CreatedAt              string              `json:"created_at" jsonschema:"RFC3339 timestamp when the circle was created"`
	UpdatedAt              string              `json:"updated_at" jsonschema:"RFC3339 timestamp when the circle was last updated"`
}

// CircleListResult represents the MCP tool output for circle listings.
type CircleListResult struct {
	Circles       []CircleResult `json:"circles" jsonschema:"one page of circles"`
	NextPageToken string         `json:"next_page_token,omitempty" jsonschema:"token for the next page, empty on the last page"`
}

// CircleCreateTool describes the circle_create MCP tool.
func CircleCreateTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "circle_create",
		Description: "Creates a savings circle administered by the configured principal.",
	}
}

// CircleGetTool describes the circle_get MCP tool.
func CircleGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "circle_get",
		Description: "Fetches one savings circle with its members, payout queue, and dissolution state.",
	}
}

// CircleListTool describes the circle_list MCP tool.
func CircleListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "circle_list",
		Description: "Lists savings circles with optional filtering and pagination.",
	}
}
