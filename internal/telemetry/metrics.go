package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitMetrics sets up a global meter provider backed by a Prometheus
// exporter and returns an http.Handler for the /metrics endpoint alongside
// a meter scoped to the scheduler. The teacher's equivalent
// (otelinit.InitMetrics) pushed over OTLP and left its promHandler return
// value permanently nil; the scheduler's steal/reserve counters are
// exactly the kind of low-cardinality gauges operators scrape rather than
// ship to a collector, so this pulls in the real exporter instead.
func InitMetrics(service string) (http.Handler, *sdkmetric.MeterProvider, metric.Meter, error) {
	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
	))
	if err != nil {
		return nil, nil, nil, err
	}
	exp, err := otelprom.New()
	if err != nil {
		return nil, nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	return promhttp.Handler(), mp, mp.Meter("dagcore-scheduler"), nil
}
