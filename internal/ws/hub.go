// Package ws streams job status transitions to connected clients, so a UI can
// watch progress without polling every job.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/doconv/convertd/internal/job"
)

// sendBuffer bounds how far a client may fall behind before it is dropped.
const sendBuffer = 64

// staleRetention is how long a finished job's sequence watermark is kept so a
// late out-of-order event for it is still recognized as stale.
const staleRetention = time.Minute

// EventMessage is the wire shape of one transition event.
type EventMessage struct {
	Type     string     `json:"type"`
	JobID    string     `json:"job_id"`
	Status   job.Status `json:"status"`
	Progress int        `json:"progress"`
}

type Hub struct {
	mu      sync.Mutex
	conns   map[*websocket.Conn]chan EventMessage
	lastSeq map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		conns:   make(map[*websocket.Conn]chan EventMessage),
		lastSeq: make(map[string]uint64),
	}
}

// Publish hands a transition event to every connected client's send queue and
// returns without waiting on any socket write. Events that arrive out of
// sequence order for a job are discarded, and a client whose queue is full is
// dropped rather than stalling the publisher.
func (h *Hub) Publish(ev job.Event) {
	msg := EventMessage{Type: "job", JobID: ev.JobID, Status: ev.Status, Progress: ev.Progress}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Seq != 0 {
		if last, ok := h.lastSeq[ev.JobID]; ok && ev.Seq <= last {
			return
		}
		h.lastSeq[ev.JobID] = ev.Seq
		if ev.Status.Terminal() {
			h.forgetLater(ev.JobID, ev.Seq)
		}
	}

	for c, ch := range h.conns {
		select {
		case ch <- msg:
		default:
			delete(h.conns, c)
			close(ch)
			log.Printf("WebSocket client dropped: send queue full")
		}
	}
}

// forgetLater clears the job's sequence watermark once any straggler events
// have had ample time to arrive. Caller holds h.mu.
func (h *Hub) forgetLater(jobID string, seq uint64) {
	time.AfterFunc(staleRetention, func() {
		h.mu.Lock()
		if h.lastSeq[jobID] == seq {
			delete(h.lastSeq, jobID)
		}
		h.mu.Unlock()
	})
}

// Count reports connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Handle upgrades the request and keeps the connection registered until the
// client goes away. Inbound messages are discarded; outbound events are
// written by a dedicated goroutine fed from the connection's send queue.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Printf("WebSocket accept error: %v", err)
		return
	}

	ch := make(chan EventMessage, sendBuffer)
	h.mu.Lock()
	h.conns[conn] = ch
	h.mu.Unlock()

	go h.writer(conn, ch)

	defer func() {
		h.drop(conn)
		conn.Close(websocket.StatusNormalClosure, "goodbye")
	}()

	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

// writer drains one connection's send queue. It exits when the queue is
// closed or when a write fails, closing the socket either way.
func (h *Hub) writer(conn *websocket.Conn, ch chan EventMessage) {
	for msg := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := wsjson.Write(ctx, conn, msg)
		cancel()
		if err != nil {
			h.drop(conn)
			conn.Close(websocket.StatusNormalClosure, "write failed")
			return
		}
	}
	conn.Close(websocket.StatusPolicyViolation, "send queue overflow")
}

// drop unregisters the connection and closes its send queue exactly once.
// Publish sends and the close both happen under h.mu, so a send on a closed
// queue cannot occur.
func (h *Hub) drop(c *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(ch)
	}
	h.mu.Unlock()
}
