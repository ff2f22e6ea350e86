package adapter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/srediag/shmcast/shmcast"
)

// RegisterOTelMetrics registers asynchronous instruments on meter that
// observe every region handle open in this process, mirroring what the
// prometheus Collector exports. The returned registration unregisters them.
func RegisterOTelMetrics(meter metric.Meter) (metric.Registration, error) {
	size, err := meter.Int64ObservableGauge("shmcast.region.size",
		metric.WithDescription("Populated slots in the region."))
	if err != nil {
		return nil, err
	}
	capacity, err := meter.Int64ObservableGauge("shmcast.region.capacity",
		metric.WithDescription("Fixed slot capacity of the region."))
	if err != nil {
		return nil, err
	}
	commits, err := meter.Int64ObservableCounter("shmcast.commits",
		metric.WithDescription("Produce commits through handles of this process."))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64ObservableCounter("shmcast.consume.retries",
		metric.WithDescription("Consume validation retries through handles of this process."))
	if err != nil {
		return nil, err
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for _, s := range shmcast.Regions() {
			attrs := metric.WithAttributes(
				attribute.String("path", s.Path),
				attribute.String("role", s.Role.String()),
			)
			o.ObserveInt64(size, int64(s.Size), attrs)
			o.ObserveInt64(capacity, int64(s.Capacity), attrs)
			o.ObserveInt64(commits, int64(s.Commits), attrs)
			o.ObserveInt64(retries, int64(s.ConsumeRetries), attrs)
		}
		return nil
	}, size, capacity, commits, retries)
}

// TraceAttach runs attach inside a span named "shmcast.attach". Attach and
// detach are the only shmcast operations slow enough to be worth tracing;
// the per-slot protocol never appears on a span.
func TraceAttach(ctx context.Context, tracer trace.Tracer, path string, attach func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "shmcast.attach",
		trace.WithAttributes(attribute.String("shmcast.path", path)))
	defer span.End()
	if err := attach(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
