// Package worker answers fraud-check requests arriving on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
)

var validate = validator.New()

// Checker evaluates a single check request.
type Checker interface {
	CheckRequest(ctx context.Context, req domain.CheckRequest) (*domain.FraudDetectionResult, error)
}

// CheckResult is published on TopicCheckResult for every processed request,
// and on TopicAlert when the transaction is fraudulent.
type CheckResult struct {
	RequestID string                       `json:"requestId"`
	UserID    int64                        `json:"userId"`
	Result    *domain.FraudDetectionResult `json:"result,omitempty"`
	Error     string                       `json:"error,omitempty"`
}

// Worker processes check requests asynchronously from the EventBus.
type Worker struct {
	bus     domain.EventBus
	checker Checker

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// Topic is the request topic. Defaults to TopicCheckRequested.
	Topic string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, checker Checker) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     b,
		checker: checker,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the request topic.
func (w *Worker) Start(cfg Config) error {
	topic := cfg.Topic
	if topic == "" {
		topic = domain.TopicCheckRequested
	}

	sub, err := w.bus.Subscribe(w.ctx, topic, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("check worker started", "topic", topic)
	return nil
}

// handleMessage decodes, checks and answers one request. Malformed requests
// are answered with an error result so request-reply callers do not hang.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req domain.CheckRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse check request",
			"message_id", msg.ID,
			"error", err,
		)
		w.reply(ctx, msg, CheckResult{Error: "invalid payload: " + err.Error()})
		return err
	}
	if req.RequestID == "" {
		req.RequestID = msg.ID
	}

	out := CheckResult{RequestID: req.RequestID, UserID: req.User()}

	if err := validate.Struct(req); err != nil {
		out.Error = err.Error()
		w.reply(ctx, msg, out)
		return err
	}

	res, err := w.checker.CheckRequest(ctx, req)
	if err != nil {
		slog.Warn("check request rejected",
			"request_id", req.RequestID,
			"error", err,
		)
		out.Error = err.Error()
		w.reply(ctx, msg, out)
		return err
	}
	out.Result = res

	payload := w.reply(ctx, msg, out)

	if res.IsFraud {
		if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"request_id", req.RequestID,
				"error", err,
			)
		}
	}

	slog.Info("check processed",
		"request_id", req.RequestID,
		"user_id", req.User(),
		"is_fraud", res.IsFraud,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// reply publishes the result and answers the requester, if any.
func (w *Worker) reply(ctx context.Context, msg *domain.Message, out CheckResult) []byte {
	payload, _ := json.Marshal(out)

	if err := w.bus.Publish(ctx, domain.TopicCheckResult, payload); err != nil {
		slog.Error("failed to publish check result",
			"request_id", out.RequestID,
			"error", err,
		)
	}
	if err := bus.Respond(ctx, w.bus, msg, payload); err != nil {
		slog.Error("failed to respond to check request",
			"request_id", out.RequestID,
			"error", err,
		)
	}
	return payload
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("check worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
