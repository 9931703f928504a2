package provider

import (
	"context"
	"time"

	"github.com/EOSC-Data-Commons/req-packager/internal/metrics"
)

// Call runs fn under a timeout and records its duration against the
// provider and operation labels. A zero timeout leaves ctx unchanged.
func Call[T any](ctx context.Context, timeout time.Duration, provider, operation string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	v, err := fn(ctx)
	metrics.RecordProviderCall(provider, operation, time.Since(start), err == nil)
	return v, err
}
