package http

import (
	"encoding/json"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/osusu/osusu/internal/platform/metrics"
	"github.com/osusu/osusu/internal/services/circle/engine"
	"golang.org/x/net/websocket"
)

const (
	// maxBacklogEvents bounds the per-circle replay buffer.
	maxBacklogEvents = 64
	// subscriberBuffer bounds queued frames per connection; beyond it the
	// subscriber misses events instead of stalling the publisher.
	subscriberBuffer = 16
)

// feedFrame is the wire envelope for feed traffic.
type feedFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// feedEvent mirrors one committed circle mutation.
type feedEvent struct {
	CircleID uint64 `json:"circle_id"`
	Type     string `json:"type"`
	Identity string `json:"identity,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Seq      int64  `json:"seq"`
	At       string `json:"at"`
}

// subscribedPayload greets a new subscriber with its replay position.
type subscribedPayload struct {
	CircleID  uint64 `json:"circle_id"`
	LatestSeq int64  `json:"latest_seq"`
	Backlog   int    `json:"backlog"`
}

// wsPeer owns one websocket connection's outbound frames. A dedicated
// writer goroutine drains the buffer so broadcasts never block on a slow
// connection.
type wsPeer struct {
	mu     sync.Mutex
	closed bool
	frames chan feedFrame
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	peer := &wsPeer{frames: make(chan feedFrame, subscriberBuffer)}
	go func() {
		for frame := range peer.frames {
			if err := encoder.Encode(frame); err != nil {
				return
			}
		}
	}()
	return peer
}

// send queues a frame, dropping it when the subscriber is not keeping up.
func (p *wsPeer) send(frame feedFrame) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.frames <- frame:
		return true
	default:
		return false
	}
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.frames)
}

// circleRoom fans committed events out to the circle's subscribers and keeps
// a bounded backlog for replay on subscribe.
type circleRoom struct {
	mu          sync.Mutex
	circleID    uint64
	nextSeq     int64
	backlog     []feedEvent
	subscribers map[*wsPeer]struct{}
}

func newCircleRoom(circleID uint64) *circleRoom {
	return &circleRoom{
		circleID:    circleID,
		subscribers: make(map[*wsPeer]struct{}),
	}
}

// join registers a peer and returns the latest sequence plus the backlog
// snapshot for replay.
func (r *circleRoom) join(peer *wsPeer) (int64, []feedEvent) {
	r.mu.Lock()
	r.subscribers[peer] = struct{}{}
	latest := r.nextSeq
	backlog := append([]feedEvent(nil), r.backlog...)
	r.mu.Unlock()
	metrics.FeedSubscribers.WithLabelValues(strconv.FormatUint(r.circleID, 10)).Inc()
	return latest, backlog
}

func (r *circleRoom) leave(peer *wsPeer) {
	r.mu.Lock()
	_, present := r.subscribers[peer]
	delete(r.subscribers, peer)
	r.mu.Unlock()
	if present {
		metrics.FeedSubscribers.WithLabelValues(strconv.FormatUint(r.circleID, 10)).Dec()
	}
}

// append records the event and returns the peers to notify.
func (r *circleRoom) append(event engine.Event) (feedEvent, []*wsPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSeq++
	out := feedEvent{
		CircleID: event.CircleID,
		Type:     event.Type,
		Identity: event.Actor,
		Amount:   event.Amount,
		Seq:      r.nextSeq,
		At:       event.At.UTC().Format(time.RFC3339),
	}

	r.backlog = append(r.backlog, out)
	if len(r.backlog) > maxBacklogEvents {
		r.backlog = r.backlog[len(r.backlog)-maxBacklogEvents:]
	}

	peers := make([]*wsPeer, 0, len(r.subscribers))
	for peer := range r.subscribers {
		peers = append(peers, peer)
	}
	return out, peers
}

// FeedHub broadcasts committed circle events to websocket subscribers. It
// implements engine.Publisher; Publish never blocks on subscribers.
type FeedHub struct {
	mu    sync.Mutex
	rooms map[uint64]*circleRoom
}

// NewFeedHub creates an empty feed hub.
func NewFeedHub() *FeedHub {
	return &FeedHub{rooms: make(map[uint64]*circleRoom)}
}

func (h *FeedHub) room(circleID uint64) *circleRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[circleID]
	if ok {
		return room
	}
	room = newCircleRoom(circleID)
	h.rooms[circleID] = room
	return room
}

// Publish fans one committed event out to the circle's subscribers.
func (h *FeedHub) Publish(event engine.Event) {
	out, peers := h.room(event.CircleID).append(event)
	frame := feedFrame{Type: "feed.event", Payload: mustJSON(out)}
	for _, peer := range peers {
		peer.send(frame)
	}
}

// serve streams a circle's events over one websocket connection until the
// client goes away.
func (h *FeedHub) serve(conn *websocket.Conn, circleID uint64) {
	defer func() {
		_ = conn.Close()
	}()

	room := h.room(circleID)
	peer := newWSPeer(json.NewEncoder(conn))
	latest, backlog := room.join(peer)
	defer func() {
		room.leave(peer)
		peer.close()
	}()

	peer.send(feedFrame{Type: "feed.subscribed", Payload: mustJSON(subscribedPayload{
		CircleID:  circleID,
		LatestSeq: latest,
		Backlog:   len(backlog),
	})})
	for _, event := range backlog {
		peer.send(feedFrame{Type: "feed.event", Payload: mustJSON(event)})
	}

	// Consume and discard inbound frames until the connection drops.
	buf := make([]byte, 512)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal feed frame payload: %v", err)
		return nil
	}
	return b
}
