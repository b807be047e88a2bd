package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/osusu/osusu/internal/services/circle/api/client"
)

// apiCallTimeout caps the time for a single circle API call from a tool handler.
const apiCallTimeout = 5 * time.Second

// CircleAPI is the slice of the circle service client used by tool handlers.
type CircleAPI interface {
	CreateCircle(ctx context.Context, input client.CreateCircleInput) (client.Circle, error)
	GetCircle(ctx context.Context, id uint64) (client.Circle, error)
	ListCircles(ctx context.Context, query client.ListCirclesQuery) (client.CirclePage, error)
}

// CircleCreateHandler executes a circle creation request.
func CircleCreateHandler(api CircleAPI) mcp.ToolHandlerFor[CircleCreateInput, CircleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CircleCreateInput) (*mcp.CallToolResult, CircleResult, error) {
		if api == nil {
			return nil, CircleResult{}, fmt.Errorf("circle api client is not configured")
		}
		callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
		defer cancel()

		circle, err := api.CreateCircle(callCtx, client.CreateCircleInput{
			Contribution:   input.Contribution,
			RandomizeOrder: input.RandomizeOrder,
		})
		if err != nil {
			return nil, CircleResult{}, fmt.Errorf("circle create failed: %w", err)
		}
		return nil, circleResultFromAPI(circle), nil
	}
}

// CircleGetHandler executes a circle fetch request.
func CircleGetHandler(api CircleAPI) mcp.ToolHandlerFor[CircleGetInput, CircleResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CircleGetInput) (*mcp.CallToolResult, CircleResult, error) {
		if api == nil {
			return nil, CircleResult{}, fmt.Errorf("circle api client is not configured")
		}
		if input.CircleID == 0 {
			return nil, CircleResult{}, fmt.Errorf("circle_id is required")
		}
		callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
		defer cancel()

		circle, err := api.GetCircle(callCtx, input.CircleID)
		if err != nil {
			return nil, CircleResult{}, fmt.Errorf("circle get failed: %w", err)
		}
		return nil, circleResultFromAPI(circle), nil
	}
}

// CircleListHandler executes a circle listing request.
func CircleListHandler(api CircleAPI) mcp.ToolHandlerFor[CircleListInput, CircleListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CircleListInput) (*mcp.CallToolResult, CircleListResult, error) {
		if api == nil {
			return nil, CircleListResult{}, fmt.Errorf("circle api client is not configured")
		}
		callCtx, cancel := context.WithTimeout(ctx, apiCallTimeout)
		defer cancel()

		page, err := api.ListCircles(callCtx, client.ListCirclesQuery{
			Filter:    input.Filter,
			PageSize:  input.PageSize,
			PageToken: input.PageToken,
		})
		if err != nil {
			return nil, CircleListResult{}, fmt.Errorf("circle list failed: %w", err)
		}

		result := CircleListResult{NextPageToken: page.NextPageToken}
		for _, circle := range page.Circles {
			result.Circles = append(result.Circles, circleResultFromAPI(circle))
		}
		return nil, result, nil
	}
}

func circleResultFromAPI(circle client.Circle) CircleResult {
	result := CircleResult{
		ID:                     circle.ID,
		Admin:                  circle.Admin,
		Contribution:           circle.Contribution,
		PayoutQueue:            circle.PayoutQueue,
		CycleNumber:            circle.CycleNumber,
		CurrentPayoutIndex:     circle.CurrentPayoutIndex,
		TotalVolumeDistributed: circle.TotalVolumeDistributed,
		Dissolved:              circle.Dissolved,
		RandomizeOrder:         circle.RandomizeOrder,
		CreatedAt:              circle.CreatedAt,
		UpdatedAt:              circle.UpdatedAt,
	}
	for _, member := range circle.Members {
		result.Members = append(result.Members, CircleMemberEntry{
			Identity:         member.Identity,
			ReceivedPayout:   member.ReceivedPayout,
			ContributionPaid: member.ContributionPaid,
		})
	}
	return result
}
