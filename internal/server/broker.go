package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rolecraft/turneval/internal/model"
)

// eventEvaluation is the SSE event type emitted for every new report.
const eventEvaluation = "evaluation"

// reportSummary is the SSE payload; subscribers fetch the full report by message ID.
type reportSummary struct {
	EvaluationID string  `json:"evaluation_id"`
	MessageID    string  `json:"message_id"`
	AgentName    string  `json:"agent_name"`
	OverallScore float64 `json:"overall_score"`
	Issues       int     `json:"issues"`
	Critical     int     `json:"critical"`
}

// Broker fans out new evaluation reports to SSE subscribers. It implements
// evaluations.Hook, so the evaluation service feeds it directly.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewBroker creates a new SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// OnReport broadcasts a summary of the report to every subscriber.
func (b *Broker) OnReport(_ context.Context, r model.EvaluationReport) error {
	payload, err := json.Marshal(reportSummary{
		EvaluationID: r.EvaluationID,
		MessageID:    r.MessageID,
		AgentName:    r.AgentName,
		OverallScore: r.OverallScore,
		Issues:       len(r.Issues),
		Critical:     r.IssueCount(model.SeverityCritical),
	})
	if err != nil {
		return fmt.Errorf("broker: marshal summary: %w", err)
	}
	b.broadcast(formatSSE(eventEvaluation, string(payload)))
	return nil
}

// Subscribe returns a channel that receives SSE-formatted events.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// broadcast sends an event to all subscribers. A subscriber whose buffer is
// full misses the event.
func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Debug("broker: dropped event for slow subscribers", "count", dropped)
	}
}

// formatSSE formats an event as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
