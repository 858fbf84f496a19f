package telemetry

import "math"

// Snapshot is one immutable point-in-time reading of host telemetry.
// A fresh Snapshot is produced by every Sample call and never mutated afterwards.
type Snapshot struct {
	CPU       CPU       `json:"cpu"`
	Memory    Memory    `json:"memory"`
	Disk      Disk      `json:"disk"`
	Network   Network   `json:"network"`
	GPU       GPU       `json:"gpu"`
	System    System    `json:"system"`
	Processes []Process `json:"processes"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds
}

// CPU load is in percent (0-100), rounded to two decimals.
type CPU struct {
	Usage       float64   `json:"usage"`
	Cores       []float64 `json:"cores"`
	Temperature float64   `json:"temperature"`
	Model       string    `json:"model"`
}

// Memory figures are bytes; Percentage is an integer percent.
type Memory struct {
	Used       uint64 `json:"used"`
	Total      uint64 `json:"total"`
	Percentage int    `json:"percentage"`
	Cached     uint64 `json:"cached"`
}

// Disk reports the root mount (or the first mount when / is absent)
// plus every mount with a non-zero size.
type Disk struct {
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percentage int     `json:"percentage"`
	Drives     []Drive `json:"drives"`
}

// Drive is the usage of one mount point.
type Drive struct {
	Mount      string `json:"mount"`
	Used       uint64 `json:"used"`
	Total      uint64 `json:"total"`
	Percentage int    `json:"percentage"`
}

// Network carries cumulative byte counters across all interfaces and the
// per-second rates derived from the previous sample.
type Network struct {
	Rx    uint64  `json:"rx"`
	Tx    uint64  `json:"tx"`
	RxSec float64 `json:"rxSec"`
	TxSec float64 `json:"txSec"`
}

// GPU temperature in °C; 0 when the probe is unavailable.
type GPU struct {
	Temperature float64 `json:"temperature"`
}

// System identifies the host.
type System struct {
	Uptime   uint64 `json:"uptime"` // seconds
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Kernel   string `json:"kernel"`
}

// Process is one entry of the top-processes table.
type Process struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}

// percentOf returns used/total as a rounded integer percent, 0 when total is 0.
func percentOf(used, total uint64) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(used) / float64(total) * 100))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
