package observer

import (
	"context"
	"sync"
	"time"

	"github.com/jdsidebottom/foliumai/internal/metrics"
	"github.com/sirupsen/logrus"
)

// IdentificationEvent represents an identification lifecycle event
type IdentificationEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	RequestID      string                 `json:"request_id,omitempty"`
	Strategy       string                 `json:"strategy"`
	ImageCount     int                    `json:"image_count"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorCode      string                 `json:"error_code,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	JobID          string                 `json:"job_id,omitempty"`
	Polls          int                    `json:"polls,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of identification event
type EventType string

const (
	// IdentificationStarted when an attempt is forwarded upstream
	IdentificationStarted EventType = "identification_started"
	// IdentificationCompleted when the service returned a result
	IdentificationCompleted EventType = "identification_completed"
	// IdentificationFailed when the attempt ended in a classified error
	IdentificationFailed EventType = "identification_failed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event IdentificationEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event IdentificationEvent)
}

// LoggingObserver logs identification events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles identification events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"strategy":        event.Strategy,
		"images":          event.ImageCount,
		"processing_time": event.ProcessingTime.String(),
		"success":         event.Success,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorCode != "" {
		fields["error_code"] = event.ErrorCode
		fields["error"] = event.ErrorMessage
	}
	if event.JobID != "" {
		fields["job_id"] = event.JobID
	}
	if event.Polls > 0 {
		fields["polls"] = event.Polls
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case IdentificationStarted:
		o.logger.WithFields(fields).Debug("Identification started")
	case IdentificationCompleted:
		o.logger.WithFields(fields).Info("Identification completed")
	case IdentificationFailed:
		o.logger.WithFields(fields).Warn("Identification failed")
	default:
		o.logger.WithFields(fields).Info("Identification event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver feeds the Prometheus collectors and keeps running totals
type MetricsObserver struct {
	mu                  sync.RWMutex
	total               int64
	successful          int64
	failed              int64
	byCode              map[string]int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	metrics.Register()
	return &MetricsObserver{byCode: make(map[string]int64)}
}

// OnEvent handles identification events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	switch event.EventType {
	case IdentificationStarted:
		metrics.InFlight.Inc()
	case IdentificationCompleted:
		metrics.InFlight.Dec()
		metrics.IdentificationsTotal.WithLabelValues(event.Strategy, "ok").Inc()
		metrics.IdentificationDurationSeconds.WithLabelValues(event.Strategy, "ok").Observe(event.ProcessingTime.Seconds())
	case IdentificationFailed:
		metrics.InFlight.Dec()
		metrics.IdentificationsTotal.WithLabelValues(event.Strategy, event.ErrorCode).Inc()
		metrics.IdentificationDurationSeconds.WithLabelValues(event.Strategy, event.ErrorCode).Observe(event.ProcessingTime.Seconds())
	}
	if event.Polls > 0 {
		metrics.PollAttemptsTotal.Add(float64(event.Polls))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case IdentificationStarted:
		o.total++
	case IdentificationCompleted:
		o.successful++
		o.totalProcessingTime += event.ProcessingTime
	case IdentificationFailed:
		o.failed++
		o.byCode[event.ErrorCode]++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current totals
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successful > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successful)
	}

	failures := make(map[string]int64, len(o.byCode))
	for k, v := range o.byCode {
		failures[k] = v
	}

	return map[string]interface{}{
		"total_identifications":      o.total,
		"successful_identifications": o.successful,
		"failed_identifications":     o.failed,
		"failures_by_code":           failures,
		"avg_processing_time":        avgProcessingTime.String(),
	}
}

// eventQueueSize is the per-observer backlog before NotifyObservers blocks.
const eventQueueSize = 256

type queuedEvent struct {
	ctx   context.Context
	event IdentificationEvent
}

// subscription delivers events to one observer from a single goroutine,
// so an observer sees events in the order they were published.
type subscription struct {
	observer Observer
	events   chan queuedEvent
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	pending       sync.WaitGroup
	workers       sync.WaitGroup
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		subscriptions: make([]*subscription, 0),
	}
}

// Subscribe adds an observer and starts its delivery goroutine
func (p *EventPublisher) Subscribe(observer Observer) {
	sub := &subscription{
		observer: observer,
		events:   make(chan queuedEvent, eventQueueSize),
	}

	p.mu.Lock()
	p.subscriptions = append(p.subscriptions, sub)
	p.mu.Unlock()

	p.workers.Add(1)
	go p.run(sub)
}

// Unsubscribe removes an observer. Events already queued for it are still delivered.
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, sub := range p.subscriptions {
		if sub.observer.GetObserverName() == observer.GetObserverName() {
			p.subscriptions = append(p.subscriptions[:i], p.subscriptions[i+1:]...)
			close(sub.events)
			break
		}
	}
}

// NotifyObservers queues an event for every observer
func (p *EventPublisher) NotifyObservers(ctx context.Context, event IdentificationEvent) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, sub := range p.subscriptions {
		p.pending.Add(1)
		sub.events <- queuedEvent{ctx: ctx, event: event}
	}
}

// Wait blocks until every notification sent so far has been handled
func (p *EventPublisher) Wait() {
	p.pending.Wait()
}

// Close delivers queued events and stops all delivery goroutines
func (p *EventPublisher) Close() {
	p.mu.Lock()
	for _, sub := range p.subscriptions {
		close(sub.events)
	}
	p.subscriptions = nil
	p.mu.Unlock()

	p.workers.Wait()
}

func (p *EventPublisher) run(sub *subscription) {
	defer p.workers.Done()
	for qe := range sub.events {
		p.deliver(sub.observer, qe)
	}
}

func (p *EventPublisher) deliver(obs Observer, qe queuedEvent) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(qe.ctx, qe.event)
}
