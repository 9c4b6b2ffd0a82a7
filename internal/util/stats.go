package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide media counter.
var Stats = &stats{}

type stats struct {
	Tracks      atomic.Int64 // remote tracks handed to the consumer since process start
	Packets     atomic.Int64 // RTP packets received
	Bytes       atomic.Int64 // RTP payload bytes received
	Lost        atomic.Int64 // packets missing according to sequence gaps
	Keyframes   atomic.Int64 // PLI requests sent
	Negotiation atomic.Int64 // completed offer/answer rounds
}

func (s *stats) AddTrack()             { s.Tracks.Add(1) }
func (s *stats) AddPacket(payload int) { s.Packets.Add(1); s.Bytes.Add(int64(payload)) }
func (s *stats) AddLost(n int)         { s.Lost.Add(int64(n)) }
func (s *stats) AddKeyframeRequest()   { s.Keyframes.Add(1) }
func (s *stats) AddNegotiation()       { s.Negotiation.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs media statistics every
// 10 seconds while packets are flowing. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevPackets, prevBytes, prevLost int64
		for {
			select {
			case <-ticker.C:
				packets := Stats.Packets.Load()
				bytes := Stats.Bytes.Load()
				lost := Stats.Lost.Load()

				pps := float64(packets-prevPackets) / reportInterval.Seconds()
				bps := float64(bytes-prevBytes) / reportInterval.Seconds()

				if packets > prevPackets {
					pterm.DefaultLogger.Info(formatStats(bps, pps, lost-prevLost, Stats.Tracks.Load()))
				}

				prevPackets = packets
				prevBytes = bytes
				prevLost = lost

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(bps, pps float64, lost, tracks int64) string {
	return fmt.Sprintf("Media: %s/s | %6.1f pkt/s | Lost: %3d | Tracks: %d",
		formatBytes(bps),
		pps,
		lost,
		tracks,
	)
}
