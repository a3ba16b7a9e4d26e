// Package metrics emits sync counters and timings to a StatsD agent.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/zjrosen/flowsync/internal/log"
)

const (
	FileOutcome      = "flowsync.file.outcome"
	RemoteRequest    = "flowsync.remote.request"
	RemoteLatency    = "flowsync.remote.latency"
	MetadataUpsert   = "flowsync.metadata.upsert"
	PipelineDuration = "flowsync.pipeline.duration"
	CacheFlush       = "flowsync.cache.flush"
	BrokerDropped    = "flowsync.broker.dropped"
)

const (
	TagState  = "state"
	TagOp     = "op"
	TagStatus = "status"
	TagResult = "result"
	TagEvent  = "event"
)

// Recorder is the subset of metric operations flowsync uses.
type Recorder interface {
	Count(name string, value int64, tags ...string)
	Timing(name string, value time.Duration, tags ...string)
}

// Config configures the StatsD client.
type Config struct {
	Addr       string   // host:port of the agent; empty disables emission
	SampleRate float64  // 0 or 1 means every event
	Tags       []string // global tags
}

// StatsD sends metrics through a datadog-go client.
type StatsD struct {
	client statsd.ClientInterface
	rate   float64
}

// New returns a StatsD recorder. With an empty address the client is a
// no-op so callers never need to nil-check.
func New(cfg Config) (*StatsD, error) {
	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	if cfg.Addr == "" {
		return &StatsD{client: &statsd.NoOpClient{}, rate: rate}, nil
	}

	client, err := statsd.New(cfg.Addr,
		statsd.WithTags(cfg.Tags),
		statsd.WithoutTelemetry(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating statsd client: %w", err)
	}
	log.Info(log.CatConfig, "metrics client initialized", "addr", cfg.Addr, "tags", cfg.Tags, "sample_rate", rate)
	return &StatsD{client: client, rate: rate}, nil
}

// Count increases a counter by value.
func (s *StatsD) Count(name string, value int64, tags ...string) {
	if err := s.client.Count(name, value, tags, s.rate); err != nil {
		log.Debug(log.CatConfig, "statsd count failed", "metric", name, "error", err.Error())
	}
}

// Timing records a duration.
func (s *StatsD) Timing(name string, value time.Duration, tags ...string) {
	if err := s.client.Timing(name, value, tags, s.rate); err != nil {
		log.Debug(log.CatConfig, "statsd timing failed", "metric", name, "error", err.Error())
	}
}

// Close flushes buffered metrics and releases the client.
func (s *StatsD) Close() error {
	return s.client.Close()
}

// Tag formats a key:value tag.
func Tag(key string, value any) string {
	return fmt.Sprintf("%s:%v", key, value)
}

// Memory records metrics in memory. Used by tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	counts  map[string]int64
	timings map[string]int
}

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{counts: map[string]int64{}, timings: map[string]int{}}
}

func (m *Memory) Count(name string, value int64, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key(name, tags)] += value
}

func (m *Memory) Timing(name string, _ time.Duration, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[key(name, tags)]++
}

// CountOf returns the accumulated count for name with exactly tags.
func (m *Memory) CountOf(name string, tags ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(name, tags)]
}

// TimingsOf returns how many timings were recorded for name with exactly tags.
func (m *Memory) TimingsOf(name string, tags ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timings[key(name, tags)]
}

func key(name string, tags []string) string {
	return fmt.Sprint(name, tags)
}

type discard struct{}

func (discard) Count(string, int64, ...string)          {}
func (discard) Timing(string, time.Duration, ...string) {}

// Discard drops every metric.
var Discard Recorder = discard{}

var (
	_ Recorder = (*StatsD)(nil)
	_ Recorder = (*Memory)(nil)
)
