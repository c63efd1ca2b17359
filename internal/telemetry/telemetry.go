package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

// Metric names recorded by the task runner.
const (
	TaskStarted   = "runcfg_task_started"
	TaskSucceeded = "runcfg_task_succeeded"
	TaskFailed    = "runcfg_task_failed"
	TaskDuration  = "runcfg_task_duration"
	OutputLines   = "runcfg_task_output_lines"
)

// Metric represents a telemetry metric
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector buffers metrics for the lifetime of one invocation.
type Collector struct {
	mu       sync.Mutex
	metrics  []Metric
	enabled  bool
	exporter *OTLPExporter
}

// NewCollector creates a collector. Metrics are exported to otlpEndpoint
// on flush when it is set, otherwise written to the debug log.
func NewCollector(enabled bool, otlpEndpoint string) *Collector {
	c := &Collector{enabled: enabled}
	if enabled && otlpEndpoint != "" {
		c.exporter = NewOTLPExporter(otlpEndpoint)
	}
	return c
}

// Enabled reports whether metrics are being recorded.
func (c *Collector) Enabled() bool { return c != nil && c.enabled }

// Counter increments a counter metric
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Counter, Value: value, Labels: labels})
}

// Gauge sets a gauge metric value
func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.add(Metric{Name: name, Type: Gauge, Value: value, Labels: labels})
}

// Timer records a duration measurement
func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.add(Metric{
		Name:   name,
		Type:   Timer,
		Value:  float64(duration.Milliseconds()),
		Labels: labels,
		Unit:   "ms",
	})
}

func (c *Collector) add(metric Metric) {
	if !c.Enabled() {
		return
	}
	metric.Timestamp = time.Now()

	c.mu.Lock()
	c.metrics = append(c.metrics, metric)
	c.mu.Unlock()
}

// Metrics returns a copy of the buffered metrics
func (c *Collector) Metrics() []Metric {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]Metric, len(c.metrics))
	copy(result, c.metrics)
	return result
}

// Flush drains the buffer to the exporter or the log.
func (c *Collector) Flush(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}

	c.mu.Lock()
	metrics := c.metrics
	c.metrics = nil
	c.mu.Unlock()

	if len(metrics) == 0 {
		return nil
	}

	log.Debug().Int("count", len(metrics)).Msg("Flushing telemetry metrics")

	if c.exporter != nil {
		return c.exporter.Export(ctx, metrics)
	}

	for _, metric := range metrics {
		log.Debug().
			Str("name", metric.Name).
			Str("type", string(metric.Type)).
			Float64("value", metric.Value).
			Interface("labels", metric.Labels).
			Time("timestamp", metric.Timestamp).
			Msg("telemetry_metric")
	}
	return nil
}

// TimerScope measures the time between its creation and End.
type TimerScope struct {
	startTime time.Time
	name      string
	labels    map[string]string
	collector *Collector
}

// StartTimer creates a new timer scope
func (c *Collector) StartTimer(name string, labels map[string]string) *TimerScope {
	return &TimerScope{
		startTime: time.Now(),
		name:      name,
		labels:    labels,
		collector: c,
	}
}

// End completes the timer, records the duration and returns it.
func (ts *TimerScope) End() time.Duration {
	duration := time.Since(ts.startTime)
	ts.collector.Timer(ts.name, duration, ts.labels)
	return duration
}
