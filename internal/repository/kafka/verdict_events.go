package kafka

import (
	"context"
	"time"

	"github.com/NordCoder/proxy-monitor/internal/domain/probe"
)

type VerdictEvent struct {
	Proxy     string    `json:"proxy"`
	Remark    string    `json:"remark,omitempty"`
	Up        bool      `json:"up"`
	Message   string    `json:"message"`
	LatencyMs *int64    `json:"latency_ms,omitempty"`
	Attempts  int       `json:"attempts"`
	Kind      string    `json:"kind,omitempty"`
	At        time.Time `json:"at"`
}

func NewVerdictEvent(v probe.Verdict, at time.Time) VerdictEvent {
	ev := VerdictEvent{
		Proxy:    probe.Redact(v.Target.ProxyURL),
		Remark:   v.Target.Remark,
		Up:       v.Up,
		Message:  v.Message,
		Attempts: v.Attempts,
		Kind:     string(v.Kind),
		At:       at.UTC(),
	}
	if ms, ok := v.PingMs(); ok {
		ev.LatencyMs = &ms
	}
	return ev
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, key []byte, v any) error
}

// VerdictEventsKafka mirrors every verdict onto a topic keyed by proxy.
type VerdictEventsKafka struct {
	p   jsonPublisher
	now func() time.Time
}

var _ probe.Publisher = (*VerdictEventsKafka)(nil)

func NewVerdictEventsKafka(p *Producer) *VerdictEventsKafka {
	return &VerdictEventsKafka{p: p, now: time.Now}
}

func (e *VerdictEventsKafka) PublishVerdict(ctx context.Context, v probe.Verdict) error {
	ev := NewVerdictEvent(v, e.now())
	return e.p.PublishJSON(ctx, []byte(ev.Proxy), ev)
}
