// Package client provides an HTTP client for the circle service API. Error
// responses are rebuilt into coded errors so callers can branch on the same
// reasons the service raises.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
)

// Member mirrors the member entry in circle API responses.
type Member struct {
	Identity         string `json:"identity"`
	ReceivedPayout   bool   `json:"received_payout"`
	ContributionPaid int64  `json:"contribution_paid"`
}

// Circle mirrors the circle API response body.
type Circle struct {
	ID                     uint64   `json:"id"`
	Admin                  string   `json:"admin"`
	Contribution           int64    `json:"contribution"`
	Members                []Member `json:"members"`
	PayoutQueue            []string `json:"payout_queue"`
	CycleNumber            uint32   `json:"cycle_number"`
	CurrentPayoutIndex     uint32   `json:"current_payout_index"`
	TotalVolumeDistributed int64    `json:"total_volume_distributed"`
	DissolutionVotes       []string `json:"dissolution_votes"`
	Dissolved              bool     `json:"dissolved"`
	RandomizeOrder         bool     `json:"randomize_order"`
	CreatedAt              string   `json:"created_at"`
	UpdatedAt              string   `json:"updated_at"`
}

// CirclePage holds one page of a circle listing.
type CirclePage struct {
	Circles       []Circle `json:"circles"`
	NextPageToken string   `json:"next_page_token"`
}

// CreateCircleInput carries the circle creation request body.
type CreateCircleInput struct {
	Contribution   int64 `json:"contribution"`
	RandomizeOrder bool  `json:"randomize_order"`
}

// ListCirclesQuery carries the circle listing query parameters.
type ListCirclesQuery struct {
	Filter    string
	PageSize  int
	PageToken string
}

// Client calls the circle service over HTTP.
type Client struct {
	baseURL    string
	grant      string
	httpClient *http.Client
}

// New creates a client for the API at baseURL. The grant is sent as the
// bearer token on every request; a nil httpClient falls back to the default.
func New(baseURL, grant string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("base url is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    baseURL,
		grant:      strings.TrimSpace(grant),
		httpClient: httpClient,
	}, nil
}

// CreateCircle creates a circle administered by the grant's principal.
func (c *Client) CreateCircle(ctx context.Context, input CreateCircleInput) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, "/v1/circles", input, &circle)
	return circle, err
}

// GetCircle returns one circle snapshot.
func (c *Client) GetCircle(ctx context.Context, id uint64) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodGet, circlePath(id, ""), nil, &circle)
	return circle, err
}

// ListCircles returns one page of circles.
func (c *Client) ListCircles(ctx context.Context, query ListCirclesQuery) (CirclePage, error) {
	values := url.Values{}
	if strings.TrimSpace(query.Filter) != "" {
		values.Set("filter", query.Filter)
	}
	if query.PageSize > 0 {
		values.Set("page_size", strconv.Itoa(query.PageSize))
	}
	if query.PageToken != "" {
		values.Set("page_token", query.PageToken)
	}
	path := "/v1/circles"
	if len(values) > 0 {
		path += "?" + values.Encode()
	}

	var page CirclePage
	err := c.do(ctx, http.MethodGet, path, nil, &page)
	return page, err
}

// JoinCircle enrolls the grant's principal in the circle.
func (c *Client) JoinCircle(ctx context.Context, id uint64) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, circlePath(id, "join"), nil, &circle)
	return circle, err
}

// FinalizeOrder fixes the payout queue.
func (c *Client) FinalizeOrder(ctx context.Context, id uint64) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, circlePath(id, "finalize"), nil, &circle)
	return circle, err
}

// ProcessPayout disburses one contribution to recipient.
func (c *Client) ProcessPayout(ctx context.Context, id uint64, recipient string) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, circlePath(id, "payouts"), map[string]string{"recipient": recipient}, &circle)
	return circle, err
}

// ProposeDissolution records the principal's dissolution proposal.
func (c *Client) ProposeDissolution(ctx context.Context, id uint64) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, circlePath(id, "dissolution/proposals"), nil, &circle)
	return circle, err
}

// VoteDissolve casts the principal's dissolution vote.
func (c *Client) VoteDissolve(ctx context.Context, id uint64) (Circle, error) {
	var circle Circle
	err := c.do(ctx, http.MethodPost, circlePath(id, "dissolution/votes"), nil, &circle)
	return circle, err
}

// Withdraw settles the principal's refund after dissolution.
func (c *Client) Withdraw(ctx context.Context, id uint64) (int64, error) {
	var out struct {
		Refund int64 `json:"refund"`
	}
	err := c.do(ctx, http.MethodPost, circlePath(id, "withdrawals"), nil, &out)
	return out.Refund, err
}

// Deposit moves amount from the principal to the circle's pool account.
func (c *Client) Deposit(ctx context.Context, id uint64, amount int64) error {
	return c.do(ctx, http.MethodPost, circlePath(id, "deposits"), map[string]int64{"amount": amount}, nil)
}

func circlePath(id uint64, suffix string) string {
	path := "/v1/circles/" + strconv.FormatUint(id, 10)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.grant != "" {
		req.Header.Set("Authorization", "Bearer "+c.grant)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// apiError rebuilds the service's error envelope into a coded error. Bodies
// that do not carry the envelope degrade to the HTTP status line.
func apiError(resp *http.Response) error {
	var body struct {
		Error struct {
			Reason   string            `json:"reason"`
			Message  string            `json:"message"`
			Metadata map[string]string `json:"metadata"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Reason == "" {
		return fmt.Errorf("circle api returned %s", resp.Status)
	}
	return apperrors.WithMetadata(apperrors.Code(body.Error.Reason), body.Error.Message, body.Error.Metadata)
}
