package pipeline

import (
	"context"
	"log"
	"math"
	"strconv"
	"time"

	"github.com/maxb0u/go-ditto/metrics"
	"github.com/maxb0u/go-ditto/rawsock"
	"github.com/maxb0u/go-ditto/scheduler"
	"github.com/maxb0u/go-ditto/telemetry"
)

// TransmitConfig wires the transmit task (spec §4.5): the strict pacer
// that pops one frame per tick from Scheduler and sends it on Out,
// regardless of application behaviour.
type TransmitConfig struct {
	Out       rawsock.Channel
	Scheduler *scheduler.Scheduler
	PPS       float64

	Telemetry *telemetry.Writer // nil disables data.csv latency sampling
	Isolation Isolation
}

// Interval derives the fixed inter-emission gap from a packets-per-second
// target: ceil(1e9/R) ns, per spec §4.5.
func Interval(pps float64) time.Duration {
	return time.Duration(math.Ceil(1e9/pps)) * time.Nanosecond
}

// Transmit runs the pacer loop of spec §4.5 until ctx is cancelled: record
// the tick's start instant, pop one frame, advance idx, send it, then
// sleep for interval-(now-tickStart) clamped to >= 0, advancing tickStart
// by interval (not to now) so jitter never accumulates.
func Transmit(ctx context.Context, cfg TransmitConfig) error {
	if err := isolate("transmit", cfg.Isolation); err != nil {
		return err
	}

	interval := Interval(cfg.PPS)
	n := cfg.Scheduler.NumQueues()
	idx := 0
	var iteration int64
	tickStart := time.Now()

	for !done(ctx) {
		frame, real := cfg.Scheduler.Pop(idx)
		metrics.EmittedTotal.WithLabelValues(strconv.Itoa(idx), emissionKind(real)).Inc()

		if err := cfg.Out.Send(frame); err != nil {
			log.Printf("pipeline: transmit send error: %v", err)
		}
		idx = (idx + 1) % n

		elapsed := time.Since(tickStart)
		metrics.PacingJitterHistogram.Observe((elapsed - interval).Seconds())
		if cfg.Telemetry != nil {
			iteration++
			cfg.Telemetry.RecordLatency(iteration, elapsed.Nanoseconds())
		}

		sleepFor := interval - elapsed
		if sleepFor < 0 {
			sleepFor = 0
		}
		time.Sleep(sleepFor)
		tickStart = tickStart.Add(interval)
	}
	return nil
}

func emissionKind(real bool) string {
	if real {
		return "real"
	}
	return "chaff"
}
