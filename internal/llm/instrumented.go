package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/trial-booking/internal/observability/metrics"
)

var llmTracer = otel.Tracer("trial-booking.internal.llm")

// InstrumentedClient records latency and spans around another client.
type InstrumentedClient struct {
	next     Client
	provider string
	metrics  *metrics.TrialMetrics
	now      func() time.Time
}

func NewInstrumentedClient(next Client, provider string, m *metrics.TrialMetrics) *InstrumentedClient {
	if next == nil {
		panic("llm: client cannot be nil")
	}
	return &InstrumentedClient{next: next, provider: provider, metrics: m, now: time.Now}
}

func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := llmTracer.Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", c.provider), attribute.String("llm.model", req.Model))

	start := c.now()
	resp, err := c.next.Complete(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
	}
	c.metrics.ObserveLLMCall(c.provider, status, c.now().Sub(start))
	span.SetAttributes(attribute.Int("llm.output_tokens", int(resp.Usage.OutputTokens)))
	return resp, err
}
