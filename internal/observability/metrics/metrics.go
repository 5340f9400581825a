package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
	DBStatsEnabled   bool
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ordersRecorded      metric.Int64Counter
	orderRejections     metric.Int64Counter
	notificationsFired  metric.Int64Counter
	notificationsFailed metric.Int64Counter
	catalogLists        metric.Int64Counter
	schedulerJobs       metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "merchline"
	}
	meter := provider.Meter(name)

	ordersRecorded, err := meter.Int64Counter("merchline_campaign_orders_recorded_total")
	if err != nil {
		return nil, err
	}
	orderRejections, err := meter.Int64Counter("merchline_campaign_order_rejections_total")
	if err != nil {
		return nil, err
	}
	notificationsFired, err := meter.Int64Counter("merchline_quota_notifications_fired_total")
	if err != nil {
		return nil, err
	}
	notificationsFailed, err := meter.Int64Counter("merchline_quota_notifications_failed_total")
	if err != nil {
		return nil, err
	}
	catalogLists, err := meter.Int64Counter("merchline_catalog_list_requests_total")
	if err != nil {
		return nil, err
	}
	schedulerJobs, err := meter.Int64Counter("merchline_scheduler_job_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersRecorded:      ordersRecorded,
		orderRejections:     orderRejections,
		notificationsFired:  notificationsFired,
		notificationsFailed: notificationsFailed,
		catalogLists:        catalogLists,
		schedulerJobs:       schedulerJobs,
	}, nil
}

// RecordOrder increments the ledger append count for a role.
func (m *Metrics) RecordOrder(ctx context.Context, role string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("role", strings.TrimSpace(role)))
	m.ordersRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderRejected increments rejected order counts by reason.
func (m *Metrics) RecordOrderRejected(ctx context.Context, role, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", strings.TrimSpace(role)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.orderRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotificationFired(ctx context.Context, thresholdType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("threshold_type", strings.TrimSpace(thresholdType)))
	m.notificationsFired.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordNotificationFailed(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("channel", strings.TrimSpace(channel)))
	m.notificationsFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCatalogList counts catalog listings, split by whether the caller bypassed ACLs.
func (m *Metrics) RecordCatalogList(ctx context.Context, role string, unrestricted bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("role", strings.TrimSpace(role)),
		attribute.Bool("unrestricted", unrestricted),
	)
	m.catalogLists.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSchedulerJob counts scheduler job runs by outcome.
func (m *Metrics) RecordSchedulerJob(ctx context.Context, job, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("job", strings.TrimSpace(job)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.schedulerJobs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"role":           {},
	"reason":         {},
	"threshold_type": {},
	"channel":        {},
	"unrestricted":   {},
	"route":          {},
	"method":         {},
	"status_code":    {},
	"job":            {},
	"outcome":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
