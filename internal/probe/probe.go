package probe

import (
	"context"

	"github.com/hamed0406/endpointmonitor/internal/domain"
)

// Prober performs exactly one probe for an endpoint configuration.
// Implementations never return an error: every failure ends up in the result.
type Prober interface {
	Probe(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult

func (f ProberFunc) Probe(ctx context.Context, cfg domain.EndpointConfig) domain.CheckResult {
	return f(ctx, cfg)
}
