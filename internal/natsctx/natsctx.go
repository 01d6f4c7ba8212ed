// Package natsctx propagates trace context over NATS, adapted from the
// teacher's libs/go/core/natsctx package. internal/peer uses Publish for
// fire-and-forget pings and Request for steal/len round-trips; both carry
// the caller's span across the wire so a steal that crosses a process
// boundary still shows up as one trace in internal/telemetry.
package natsctx

import (
	"context"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var propagator = propagation.TraceContext{}

// Publish injects the traceparent header and publishes data to subject.
func Publish(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	return nc.PublishMsg(&nats.Msg{Subject: subject, Data: data, Header: hdr})
}

// Request injects the traceparent header and performs a synchronous
// request-reply, used for the steal and len calls that must observe a
// peer's current deque state rather than merely notify it.
func Request(ctx context.Context, nc *nats.Conn, subject string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: subject, Data: data, Header: hdr}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return nc.RequestMsgWithContext(ctx, msg)
}

// Subscribe wraps nc.Subscribe, extracting trace context from each message
// and starting a child span around handler.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		tr := otel.Tracer("dagcore-nats")
		ctx, span := tr.Start(ctx, "nats.consume", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		handler(ctx, m)
	})
}

// SubscribeRequest wraps Subscribe for request-reply subjects: handler
// returns the reply payload, which is published back to m.Reply.
func SubscribeRequest(nc *nats.Conn, subject string, handler func(context.Context, *nats.Msg) ([]byte, error)) (*nats.Subscription, error) {
	return Subscribe(nc, subject, func(ctx context.Context, m *nats.Msg) {
		if m.Reply == "" {
			return
		}
		reply, err := handler(ctx, m)
		if err != nil {
			_ = nc.Publish(m.Reply, []byte("err:"+err.Error()))
			return
		}
		_ = nc.Publish(m.Reply, reply)
	})
}
