package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// ServiceVersion is reported as the service.version resource attribute.
var ServiceVersion = "dev"

// OTLPExporter sends metrics in OpenTelemetry Protocol format
type OTLPExporter struct {
	endpoint string
	client   *retryingClient
}

// NewOTLPExporter creates a new OTLP exporter
func NewOTLPExporter(endpoint string) *OTLPExporter {
	return &OTLPExporter{
		endpoint: endpoint,
		client:   newRetryingClient(5*time.Second, DefaultRetryConfig()),
	}
}

// otlpMetricsPayload represents OTLP metrics in JSON format
// This is a simplified OTLP JSON representation
type otlpMetricsPayload struct {
	ResourceMetrics []otlpResourceMetrics `json:"resourceMetrics"`
}

type otlpResourceMetrics struct {
	Resource     otlpResource       `json:"resource"`
	ScopeMetrics []otlpScopeMetrics `json:"scopeMetrics"`
}

type otlpResource struct {
	Attributes []otlpAttribute `json:"attributes"`
}

type otlpScopeMetrics struct {
	Scope   otlpScope    `json:"scope"`
	Metrics []otlpMetric `json:"metrics"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type otlpMetric struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Sum         *otlpSum   `json:"sum,omitempty"`
	Gauge       *otlpGauge `json:"gauge,omitempty"`
}

type otlpSum struct {
	DataPoints             []otlpNumberDataPoint `json:"dataPoints"`
	AggregationTemporality int                   `json:"aggregationTemporality"`
	IsMonotonic            bool                  `json:"isMonotonic"`
}

type otlpGauge struct {
	DataPoints []otlpNumberDataPoint `json:"dataPoints"`
}

type otlpNumberDataPoint struct {
	Attributes   []otlpAttribute `json:"attributes,omitempty"`
	TimeUnixNano int64           `json:"timeUnixNano"`
	AsDouble     float64         `json:"asDouble"`
}

type otlpAttribute struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

type otlpValue struct {
	StringValue string `json:"stringValue,omitempty"`
}

// Export posts metrics to the OTLP/HTTP JSON endpoint
func (e *OTLPExporter) Export(ctx context.Context, metrics []Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	payload := e.convertToOTLP(metrics)
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal OTLP payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("OTLP endpoint returned status %d", resp.StatusCode)
	}

	log.Debug().
		Str("endpoint", e.endpoint).
		Int("metric_count", len(metrics)).
		Int("status", resp.StatusCode).
		Msg("Successfully exported metrics via OTLP")

	return nil
}

// convertToOTLP converts our internal metrics to OTLP format
func (e *OTLPExporter) convertToOTLP(metrics []Metric) otlpMetricsPayload {
	var otlpMetrics []otlpMetric

	for _, metric := range metrics {
		timeNano := metric.Timestamp.UnixNano()

		keys := make([]string, 0, len(metric.Labels))
		for k := range metric.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var attributes []otlpAttribute
		for _, k := range keys {
			attributes = append(attributes, otlpAttribute{
				Key:   k,
				Value: otlpValue{StringValue: metric.Labels[k]},
			})
		}

		dataPoint := otlpNumberDataPoint{
			Attributes:   attributes,
			TimeUnixNano: timeNano,
			AsDouble:     metric.Value,
		}

		otlpMetric := otlpMetric{
			Name: metric.Name,
			Unit: metric.Unit,
		}

		switch metric.Type {
		case Counter:
			otlpMetric.Sum = &otlpSum{
				DataPoints:             []otlpNumberDataPoint{dataPoint},
				AggregationTemporality: 2, // CUMULATIVE
				IsMonotonic:            true,
			}
		case Gauge, Timer:
			otlpMetric.Gauge = &otlpGauge{
				DataPoints: []otlpNumberDataPoint{dataPoint},
			}
		}

		otlpMetrics = append(otlpMetrics, otlpMetric)
	}

	return otlpMetricsPayload{
		ResourceMetrics: []otlpResourceMetrics{
			{
				Resource: otlpResource{
					Attributes: []otlpAttribute{
						{
							Key:   "service.name",
							Value: otlpValue{StringValue: "runcfg"},
						},
						{
							Key:   "service.version",
							Value: otlpValue{StringValue: ServiceVersion},
						},
					},
				},
				ScopeMetrics: []otlpScopeMetrics{
					{
						Scope: otlpScope{
							Name:    "runcfg/runner",
							Version: ServiceVersion,
						},
						Metrics: otlpMetrics,
					},
				},
			},
		},
	}
}
