// Package http serves the circle service's JSON API. Every /v1 route
// authenticates the caller through a signed principal grant; the grant
// subject is the identity all operations act as.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/osusu/osusu/internal/platform/errors"
	"github.com/osusu/osusu/internal/platform/metrics"
	"github.com/osusu/osusu/internal/services/circle/domain"
	"github.com/osusu/osusu/internal/services/circle/engine"
	"github.com/osusu/osusu/internal/services/circle/filter"
	"github.com/osusu/osusu/internal/services/circle/storage"
	"github.com/osusu/osusu/internal/services/council"
	councilservice "github.com/osusu/osusu/internal/services/council/service"
	"golang.org/x/net/websocket"
)

// HandlerConfig wires the API handler's collaborators.
type HandlerConfig struct {
	Engine   *engine.Engine
	Councils *councilservice.Service
	Feed     *FeedHub
	Grants   GrantConfig
	Logger   *log.Logger
}

// Handler routes circle API requests.
type Handler struct {
	engine   *engine.Engine
	councils *councilservice.Service
	feed     *FeedHub
	grants   GrantConfig
}

// NewHandler builds the HTTP handler for the circle service.
func NewHandler(cfg HandlerConfig) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.Councils == nil {
		return nil, errors.New("council service is required")
	}
	if cfg.Feed == nil {
		cfg.Feed = NewFeedHub()
	}
	handler := &Handler{
		engine:   cfg.Engine,
		councils: cfg.Councils,
		feed:     cfg.Feed,
		grants:   cfg.Grants,
	}
	return handler.routes(cfg.Logger), nil
}

func (h *Handler) routes(logger *log.Logger) http.Handler {
	authed := Authenticate(h.grants)
	mux := http.NewServeMux()

	mux.Handle(http.MethodPost+" /v1/circles", Chain(http.HandlerFunc(h.createCircle), authed))
	mux.Handle(http.MethodGet+" /v1/circles", Chain(http.HandlerFunc(h.listCircles), authed))
	mux.Handle(http.MethodGet+" /v1/circles/{id}", Chain(http.HandlerFunc(h.getCircle), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/join", Chain(http.HandlerFunc(h.joinCircle), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/finalize", Chain(http.HandlerFunc(h.finalizeOrder), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/payouts", Chain(http.HandlerFunc(h.processPayout), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/dissolution/proposals", Chain(http.HandlerFunc(h.proposeDissolution), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/dissolution/votes", Chain(http.HandlerFunc(h.voteDissolve), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/withdrawals", Chain(http.HandlerFunc(h.withdraw), authed))
	mux.Handle(http.MethodPost+" /v1/circles/{id}/deposits", Chain(http.HandlerFunc(h.deposit), authed))
	mux.Handle(http.MethodGet+" /v1/circles/{id}/events", Chain(http.HandlerFunc(h.circleEvents), authed))

	mux.Handle(http.MethodPost+" /v1/councils", Chain(http.HandlerFunc(h.createCouncil), authed))
	mux.Handle(http.MethodGet+" /v1/councils/{id}", Chain(http.HandlerFunc(h.getCouncil), authed))
	mux.Handle(http.MethodPost+" /v1/councils/{id}/approvals", Chain(http.HandlerFunc(h.approveCouncil), authed))
	mux.Handle(http.MethodPost+" /v1/councils/{id}/clear", Chain(http.HandlerFunc(h.clearCouncil), authed))

	mux.HandleFunc(http.MethodGet+" /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle(http.MethodGet+" /metrics", metrics.Handler())

	return Chain(mux, RequestID(), RequestLogger(logger), Instrument(), RecoverPanic())
}

// memberView is the JSON shape of one circle member.
type memberView struct {
	Identity         string `json:"identity"`
	ReceivedPayout   bool   `json:"received_payout"`
	ContributionPaid int64  `json:"contribution_paid"`
}

// circleView is the JSON shape of one circle.
type circleView struct {
	ID                     uint64       `json:"id"`
	Admin                  string       `json:"admin"`
	Contribution           int64        `json:"contribution"`
	Members                []memberView `json:"members"`
	PayoutQueue            []string     `json:"payout_queue"`
	CycleNumber            uint32       `json:"cycle_number"`
	CurrentPayoutIndex     uint32       `json:"current_payout_index"`
	TotalVolumeDistributed int64        `json:"total_volume_distributed"`
	DissolutionVotes       []string     `json:"dissolution_votes"`
	Dissolved              bool         `json:"dissolved"`
	RandomizeOrder         bool         `json:"randomize_order"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

func toCircleView(circle domain.Circle) circleView {
	view := circleView{
		ID:                     circle.ID,
		Admin:                  circle.Admin,
		Contribution:           circle.Contribution,
		Members:                make([]memberView, len(circle.Members)),
		PayoutQueue:            emptyIfNil(circle.PayoutQueue),
		CycleNumber:            circle.CycleNumber,
		CurrentPayoutIndex:     circle.CurrentPayoutIndex,
		TotalVolumeDistributed: circle.TotalVolumeDistributed,
		DissolutionVotes:       emptyIfNil(circle.DissolutionVotes),
		Dissolved:              circle.Dissolved,
		RandomizeOrder:         circle.RandomizeOrder,
		CreatedAt:              circle.CreatedAt,
		UpdatedAt:              circle.UpdatedAt,
	}
	for i, member := range circle.Members {
		view.Members[i] = memberView(member)
	}
	return view
}

func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

type createCircleRequest struct {
	Contribution   int64 `json:"contribution"`
	RandomizeOrder bool  `json:"randomize_order"`
}

type payoutRequest struct {
	Recipient string `json:"recipient"`
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type withdrawResponse struct {
	Refund int64 `json:"refund"`
}

type listCirclesResponse struct {
	Circles       []circleView `json:"circles"`
	NextPageToken string       `json:"next_page_token,omitempty"`
}

func (h *Handler) createCircle(w http.ResponseWriter, r *http.Request) {
	var req createCircleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	circle, err := h.engine.Create(r.Context(), engine.CreateInput{
		Admin:          principal(r),
		Contribution:   req.Contribution,
		RandomizeOrder: req.RandomizeOrder,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCircleView(circle))
}

func (h *Handler) listCircles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	circleFilter, err := filter.ParseCircleFilter(query.Get("filter"))
	if err != nil {
		writeError(w, r, apperrors.WrapWithMetadata(
			apperrors.CodeListFilterInvalid,
			"parse list filter",
			map[string]string{"Filter": query.Get("filter")},
			err,
		))
		return
	}

	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, apperrors.WithMetadata(
				apperrors.CodeRequestInvalid,
				"page_size must be an integer",
				map[string]string{"PageSize": raw},
			))
			return
		}
	}

	page, err := h.engine.List(r.Context(), storage.ListQuery{
		Filter:    circleFilter,
		PageSize:  pageSize,
		PageToken: query.Get("page_token"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := listCirclesResponse{
		Circles:       make([]circleView, len(page.Circles)),
		NextPageToken: page.NextPageToken,
	}
	for i, circle := range page.Circles {
		resp.Circles[i] = toCircleView(circle)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCircle(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	circle, err := h.engine.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCircleView(circle))
}

func (h *Handler) joinCircle(w http.ResponseWriter, r *http.Request) {
	h.mutateCircle(w, r, func(id uint64) (domain.Circle, error) {
		return h.engine.Join(r.Context(), id, principal(r))
	})
}

func (h *Handler) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	h.mutateCircle(w, r, func(id uint64) (domain.Circle, error) {
		return h.engine.FinalizeOrder(r.Context(), id, principal(r))
	})
}

func (h *Handler) processPayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.mutateCircle(w, r, func(id uint64) (domain.Circle, error) {
		return h.engine.ProcessPayout(r.Context(), id, principal(r), req.Recipient)
	})
}

func (h *Handler) proposeDissolution(w http.ResponseWriter, r *http.Request) {
	h.mutateCircle(w, r, func(id uint64) (domain.Circle, error) {
		return h.engine.ProposeDissolution(r.Context(), id, principal(r))
	})
}

func (h *Handler) voteDissolve(w http.ResponseWriter, r *http.Request) {
	h.mutateCircle(w, r, func(id uint64) (domain.Circle, error) {
		return h.engine.VoteDissolve(r.Context(), id, principal(r))
	})
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	refund, err := h.engine.Withdraw(r.Context(), id, principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{Refund: refund})
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.engine.Deposit(r.Context(), id, principal(r), req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) circleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Reject before the upgrade so missing circles answer with JSON.
	if _, err := h.engine.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.feed.serve(conn, id)
	}).ServeHTTP(w, r)
}

// mutateCircle runs one engine mutation addressed by the path id and writes
// the updated circle.
func (h *Handler) mutateCircle(w http.ResponseWriter, r *http.Request, fn func(id uint64) (domain.Circle, error)) {
	id, err := circleIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	circle, err := fn(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCircleView(circle))
}

// councilView is the JSON shape of one council.
type councilView struct {
	ID        uint64    `json:"id"`
	Elders    []string  `json:"elders"`
	Threshold uint32    `json:"threshold"`
	Approvals []string  `json:"approvals"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toCouncilView(record council.Council) councilView {
	return councilView{
		ID:        record.ID,
		Elders:    emptyIfNil(record.Elders),
		Threshold: record.Threshold,
		Approvals: emptyIfNil(record.Approvals),
		Approved:  record.Approved(),
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

type createCouncilRequest struct {
	Elders    []string `json:"elders"`
	Threshold uint32   `json:"threshold"`
}

func (h *Handler) createCouncil(w http.ResponseWriter, r *http.Request) {
	var req createCouncilRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	record, err := h.councils.Create(r.Context(), req.Elders, req.Threshold)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouncilView(record))
}

func (h *Handler) getCouncil(w http.ResponseWriter, r *http.Request) {
	id, err := councilIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := h.councils.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouncilView(record))
}

func (h *Handler) approveCouncil(w http.ResponseWriter, r *http.Request) {
	id, err := councilIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := h.councils.Approve(r.Context(), id, principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouncilView(record))
}

func (h *Handler) clearCouncil(w http.ResponseWriter, r *http.Request) {
	id, err := councilIDFromPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, err := h.councils.Clear(r.Context(), id, principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouncilView(record))
}

// circleIDFromPath parses the {id} path segment. Unparseable ids read as
// resources that do not exist.
func circleIDFromPath(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.WithMetadata(
			apperrors.CodeCircleNotFound,
			"circle id is not valid",
			map[string]string{"ID": raw},
		)
	}
	return id, nil
}

func councilIDFromPath(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.PathValue("id"))
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.WithMetadata(
			apperrors.CodeCouncilNotFound,
			"council id is not valid",
			map[string]string{"ID": raw},
		)
	}
	return id, nil
}

// decodeJSON reads one JSON document from the request body.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.New(apperrors.CodeRequestInvalid, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.New(apperrors.CodeRequestInvalid, "request body is required")
		}
		return apperrors.Wrap(apperrors.CodeRequestInvalid, "decode request body", err)
	}
	return nil
}
