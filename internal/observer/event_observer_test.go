package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jdsidebottom/foliumai/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []IdentificationEvent
}

func (r *recordingObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

func (r *recordingObserver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type panickingObserver struct{}

func (panickingObserver) OnEvent(ctx context.Context, event IdentificationEvent) { panic("boom") }
func (panickingObserver) GetObserverName() string                                { return "panicking" }

func TestEventPublisher_NotifiesAndUnsubscribes(t *testing.T) {
	p := NewEventPublisher()
	t.Cleanup(p.Close)
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}
	p.Subscribe(a)
	p.Subscribe(b)
	p.Subscribe(panickingObserver{})

	p.NotifyObservers(context.Background(), IdentificationEvent{EventType: IdentificationStarted})
	p.Wait()
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())

	p.Unsubscribe(a)
	p.NotifyObservers(context.Background(), IdentificationEvent{EventType: IdentificationCompleted})
	p.Wait()
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 2, b.count())
}

// slowObserver takes longer on start events so any reordering would show.
type slowObserver struct {
	recordingObserver
}

func (s *slowObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	if event.EventType == IdentificationStarted {
		time.Sleep(time.Millisecond)
	}
	s.recordingObserver.OnEvent(ctx, event)
}

func TestEventPublisher_PreservesOrderPerObserver(t *testing.T) {
	p := NewEventPublisher()
	t.Cleanup(p.Close)
	o := &slowObserver{recordingObserver{name: "slow"}}
	p.Subscribe(o)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		p.NotifyObservers(ctx, IdentificationEvent{EventType: IdentificationStarted, RequestID: "r"})
		p.NotifyObservers(ctx, IdentificationEvent{EventType: IdentificationCompleted, RequestID: "r"})
	}
	p.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.events, 40)
	for i, e := range o.events {
		want := IdentificationStarted
		if i%2 == 1 {
			want = IdentificationCompleted
		}
		assert.Equal(t, want, e.EventType, "event %d", i)
	}
}

func TestEventPublisher_InFlightGaugeSettles(t *testing.T) {
	p := NewEventPublisher()
	t.Cleanup(p.Close)
	p.Subscribe(NewMetricsObserver())
	before := testutil.ToFloat64(metrics.InFlight)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		p.NotifyObservers(ctx, IdentificationEvent{EventType: IdentificationStarted, Strategy: "direct"})
		p.NotifyObservers(ctx, IdentificationEvent{EventType: IdentificationFailed, Strategy: "direct", ErrorCode: "timeout"})
	}
	p.Wait()
	assert.Equal(t, before, testutil.ToFloat64(metrics.InFlight))
}

func TestEventPublisher_CloseDrainsQueue(t *testing.T) {
	p := NewEventPublisher()
	o := &recordingObserver{name: "a"}
	p.Subscribe(o)
	for i := 0; i < 5; i++ {
		p.NotifyObservers(context.Background(), IdentificationEvent{EventType: IdentificationStarted})
	}
	p.Close()
	assert.Equal(t, 5, o.count())

	// Publishing after Close reaches nobody.
	p.NotifyObservers(context.Background(), IdentificationEvent{EventType: IdentificationStarted})
	p.Wait()
	assert.Equal(t, 5, o.count())
}

func TestMetricsObserver(t *testing.T) {
	o := NewMetricsObserver()
	before := testutil.ToFloat64(metrics.IdentificationsTotal.WithLabelValues("direct", "rate_limited"))

	ctx := context.Background()
	o.OnEvent(ctx, IdentificationEvent{EventType: IdentificationStarted, Strategy: "direct"})
	o.OnEvent(ctx, IdentificationEvent{EventType: IdentificationCompleted, Strategy: "direct", ProcessingTime: 2 * time.Second})
	o.OnEvent(ctx, IdentificationEvent{EventType: IdentificationStarted, Strategy: "direct"})
	o.OnEvent(ctx, IdentificationEvent{EventType: IdentificationFailed, Strategy: "direct", ErrorCode: "rate_limited"})

	m := o.GetMetrics()
	assert.Equal(t, int64(2), m["total_identifications"])
	assert.Equal(t, int64(1), m["successful_identifications"])
	assert.Equal(t, int64(1), m["failed_identifications"])
	assert.Equal(t, map[string]int64{"rate_limited": 1}, m["failures_by_code"])
	assert.Equal(t, "2s", m["avg_processing_time"])

	after := testutil.ToFloat64(metrics.IdentificationsTotal.WithLabelValues("direct", "rate_limited"))
	assert.Equal(t, before+1, after)
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(l).OnEvent(context.Background(), IdentificationEvent{
		EventType: IdentificationFailed,
		RequestID: "req-1",
		Strategy:  "poll",
		ErrorCode: "pending",
		JobID:     "job-9",
		Polls:     3,
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "job-9", entry["job_id"])
	assert.Equal(t, "pending", entry["error_code"])
}
