package server

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hopewell/crm/internal/kanban"
)

// sseEvent represents an SSE event to send to the client.
type sseEvent struct {
	Event string
	Data  any
}

type cardMovedEvent struct {
	Pipeline string `json:"pipeline"`
	CardID   string `json:"cardId"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type stageEvent struct {
	Pipeline string         `json:"pipeline"`
	OldKey   string         `json:"oldKey,omitempty"`
	Key      string         `json:"key,omitempty"`
	Fallback string         `json:"fallback,omitempty"`
	Stage    *kanban.Stage  `json:"stage,omitempty"`
	Stages   []kanban.Stage `json:"stages,omitempty"`
	Affected int            `json:"affected"`
}

// clientBuffer is how many events a slow client may lag before events are
// dropped for it.
const clientBuffer = 32

// Broker fans committed engine changes out to connected SSE clients. It
// implements kanban.Listener.
type Broker struct {
	mu      sync.Mutex
	clients map[chan sseEvent]struct{}
	closed  bool
}

// NewBroker returns a broker with no clients.
func NewBroker() *Broker {
	return &Broker{clients: make(map[chan sseEvent]struct{})}
}

func (b *Broker) subscribe() chan sseEvent {
	ch := make(chan sseEvent, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.clients[ch] = struct{}{}
	return ch
}

func (b *Broker) unsubscribe(ch chan sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// Close disconnects every client.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broker) publish(ev sseEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *Broker) CardMoved(pipeline, cardID, fromKey, toKey string) {
	b.publish(sseEvent{"card_moved", cardMovedEvent{pipeline, cardID, fromKey, toKey}})
}

func (b *Broker) StageAdded(pipeline string, stage kanban.Stage) {
	b.publish(sseEvent{"stage_added", stageEvent{Pipeline: pipeline, Key: stage.Key, Stage: &stage}})
}

func (b *Broker) StageRenamed(pipeline, oldKey string, stage kanban.Stage, affected int) {
	b.publish(sseEvent{"stage_renamed", stageEvent{
		Pipeline: pipeline, OldKey: oldKey, Key: stage.Key, Stage: &stage, Affected: affected,
	}})
}

func (b *Broker) StageDeleted(pipeline, key, fallbackKey string, affected int) {
	b.publish(sseEvent{"stage_deleted", stageEvent{
		Pipeline: pipeline, Key: key, Fallback: fallbackKey, Affected: affected,
	}})
}

func (b *Broker) StagesReordered(pipeline string, stages []kanban.Stage) {
	b.publish(sseEvent{"stages_reordered", stageEvent{Pipeline: pipeline, Stages: stages}})
}

// handleSSE streams broker events to one client until it disconnects.
func handleSSE(broker *Broker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		if broker == nil {
			writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
			c.Writer.Flush()
			return
		}

		events := broker.subscribe()
		defer broker.unsubscribe(events)

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		heartbeat := time.NewTicker(15 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case ev, ok := <-events:
				if !ok {
					return
				}
				writeSSE(c.Writer, ev.Event, ev.Data)
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
