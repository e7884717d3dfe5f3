package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	alertapp "pasture-cloud/internal/alerts/application"
)

type streamClient struct {
	ch     chan []byte
	farmID string
}

// SSEBroker fans alert events out to connected clients. A client may scope
// its subscription to one farm; unscoped clients receive everything.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[*streamClient]struct{})}
}

// Notify implements alertapp.AlertNotifier.
func (b *SSEBroker) Notify(_ context.Context, event alertapp.AlertEvent) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	b.mu.Lock()
	clients := make([]*streamClient, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()
	for _, c := range clients {
		if c.farmID != "" && c.farmID != event.Alert.FarmID {
			continue
		}
		select {
		case c.ch <- payload:
		default:
			// Slow clients drop events rather than blocking the recorder.
		}
	}
}

// Subscribe registers a client, optionally scoped to a farm.
func (b *SSEBroker) Subscribe(farmID string) *streamClient {
	if b == nil {
		return nil
	}
	c := &streamClient{ch: make(chan []byte, 16), farmID: farmID}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// Unsubscribe removes a client. The channel is never closed: Notify may be
// sending on it from another goroutine, and the stream loop exits through the
// request context instead.
func (b *SSEBroker) Unsubscribe(c *streamClient) {
	if b == nil || c == nil {
		return
	}
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

// StreamHandler serves GET /api/v1/alerts/stream as server-sent events.
type StreamHandler struct {
	broker *SSEBroker
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker) *StreamHandler {
	return &StreamHandler{broker: broker}
}

// ServeHTTP streams alert events until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.broker.Subscribe(r.URL.Query().Get("farm_id"))
	if client == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(client)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case payload := <-client.ch:
			_, _ = w.Write([]byte("event: alert\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}
