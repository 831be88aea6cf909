// Package types defines shared types for the Quasar Resque agent.
// Report payloads are JSON encoded so other Gravito tooling can read them.
package types

import (
	"strconv"
	"time"
)

// Agent identity published with every report.
const (
	AgentGUID    = "com.gravito.resque"
	AgentVersion = "1.0.2"
)

// QueueInfo is a point-in-time view of a Resque backend.
// Processed and failed totals are cumulative and reset to 0 when Redis is flushed.
type QueueInfo struct {
	Working        uint64 `json:"working"`
	Workers        uint64 `json:"workers"`
	Pending        uint64 `json:"pending"`
	ProcessedTotal uint64 `json:"processed"`
	FailedTotal    uint64 `json:"failed"` // 0 when the backend has never recorded a failure
	Queues         uint64 `json:"queues"`
}

// AgentTarget is one Redis instance to poll.
type AgentTarget struct {
	ID        string `json:"id"`   // "<host>_<port>"
	Host      string `json:"host"` // fqdn
	Port      uint16 `json:"port"`
	Namespace string `json:"namespace,omitempty"`
	Hostname  string `json:"hostname,omitempty"` // optional display label

	// Redis is the connection string handed to the agent. Discovery sets it to
	// "host:port"; static configuration may use a redis:// URL instead.
	Redis string `json:"redis"`
}

// TargetID builds the identifier used for a discovered target.
func TargetID(host string, port uint16) string {
	return host + "_" + strconv.Itoa(int(port))
}

// Addr returns host:port for the target.
func (t AgentTarget) Addr() string {
	return t.Host + ":" + strconv.Itoa(int(t.Port))
}

// Label returns the human readable label for the target
func (t AgentTarget) Label() string {
	if t.Hostname != "" {
		return t.Hostname
	}
	return t.ID
}

// Metric is a single reported value
type Metric struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}

// CPUMetrics contains CPU usage data of the collector
type CPUMetrics struct {
	System  float64 `json:"system"`  // System-wide CPU % (0-100)
	Process float64 `json:"process"` // This process CPU % (0-100)
	Cores   int     `json:"cores"`
}

// MemoryMetrics contains memory usage of the collector
type MemoryMetrics struct {
	SystemTotal uint64 `json:"systemTotal"`
	SystemUsed  uint64 `json:"systemUsed"`
	ProcessRSS  uint64 `json:"processRss"`
}

// CollectorInfo describes the process that produced a report.
type CollectorInfo struct {
	Hostname string        `json:"hostname"`
	PID      int           `json:"pid"`
	Platform string        `json:"platform"`
	Uptime   float64       `json:"uptime"`
	CPU      CPUMetrics    `json:"cpu"`
	Memory   MemoryMetrics `json:"memory"`
}

// ReportPayload is the complete payload written to the transport Redis
type ReportPayload struct {
	ID        string         `json:"id"`
	GUID      string         `json:"guid"`
	Version   string         `json:"version"`
	Agent     string         `json:"agent"`
	Label     string         `json:"label"`
	Metrics   []Metric       `json:"metrics"`
	Collector *CollectorInfo `json:"collector,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Value returns the value of the named metric and whether it was reported.
func (p *ReportPayload) Value(name string) (float64, bool) {
	for _, m := range p.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

// Age returns how long ago the payload was produced
func (p *ReportPayload) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(p.Timestamp))
}
