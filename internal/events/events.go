// Package events publishes scan lifecycle events on NATS with trace context
// carried in message headers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/dharsanguruparan/FitSpo/internal/scan"
)

// SubjectScanCompleted receives one message per scan that reached a terminal
// job state.
const SubjectScanCompleted = "fitspo.scan.completed"

// ScanCompleted is the JSON body of a SubjectScanCompleted message.
type ScanCompleted struct {
	PostID    string    `json:"postId"`
	JobID     string    `json:"jobId"`
	Status    string    `json:"status"`
	ItemCount int       `json:"itemCount"`
	Cached    bool      `json:"cached"`
	ScannedAt time.Time `json:"scannedAt"`
}

// headerCarrier adapts nats.Msg headers for the otel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher implements scan.Notifier over a NATS connection.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an open connection. The caller owns nc.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// ScanCompleted publishes the outcome of res.
func (p *Publisher) ScanCompleted(ctx context.Context, res *scan.Result) error {
	evt := ScanCompleted{
		PostID:    res.PostID,
		ItemCount: len(res.Items),
		Cached:    res.Cached,
		ScannedAt: res.StartedAt,
	}
	if res.Job != nil {
		evt.JobID = res.Job.ID
		evt.Status = string(res.Job.Status)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &nats.Msg{Subject: SubjectScanCompleted, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", SubjectScanCompleted, err)
	}
	return nil
}

// Subscribe calls handler for every scan-completed event. Malformed messages
// are dropped.
func Subscribe(nc *nats.Conn, handler func(context.Context, ScanCompleted)) (*nats.Subscription, error) {
	return nc.Subscribe(SubjectScanCompleted, func(msg *nats.Msg) {
		var evt ScanCompleted
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, evt)
	})
}
