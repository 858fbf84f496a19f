// Package models defines GORM data models for RaspTerm.
package models

// StatsRecord is one persisted telemetry sample in the retention history.
// Rows are append-only; the retention store prunes by Timestamp.
type StatsRecord struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// Timestamp is the sample time in Unix milliseconds.
	Timestamp int64 `gorm:"index:idx_stats_timestamp;not null" json:"timestamp"`

	// ── Compute ──────────────────────────────────────────────────────────────
	CPUUsage float64 `json:"cpu_usage"` // percent 0-100
	CPUTemp  float64 `json:"cpu_temp"`  // °C
	GPUTemp  float64 `json:"gpu_temp"`  // °C, 0 when the probe is unavailable

	// ── Capacity (bytes) ─────────────────────────────────────────────────────
	MemoryUsed  uint64 `json:"memory_used"`
	MemoryTotal uint64 `json:"memory_total"`
	DiskUsed    uint64 `json:"disk_used"`
	DiskTotal   uint64 `json:"disk_total"`

	// ── Network (cumulative byte counters) ───────────────────────────────────
	NetworkRx uint64 `json:"network_rx"`
	NetworkTx uint64 `json:"network_tx"`
}

// TableName keeps the historical table name used by earlier releases.
func (StatsRecord) TableName() string { return "stats_history" }
