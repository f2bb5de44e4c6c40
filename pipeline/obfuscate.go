package pipeline

import (
	"context"
	"log"
	"net"

	"github.com/maxb0u/go-ditto/metrics"
	"github.com/maxb0u/go-ditto/padstats"
	"github.com/maxb0u/go-ditto/rawsock"
	"github.com/maxb0u/go-ditto/scheduler"
	"github.com/maxb0u/go-ditto/telemetry"
)

// ethSrcMACOffset is where the source MAC begins in a captured Ethernet
// frame (6-byte destination MAC, then 6-byte source MAC).
const ethSrcMACOffset = 6

// ObfuscateConfig wires the obfuscate task (spec §4.5): read raw frames
// from In, classify and push them into Scheduler, filtering on source MAC
// the way the teacher's main.go filters the machine's own echoed netlink
// replies before they reach the saver.
type ObfuscateConfig struct {
	In        rawsock.Channel
	Scheduler *scheduler.Scheduler

	// IfaceMAC is the IN interface's own hardware address; SrcDeviceMAC is
	// the optional configured src_device MAC (spec §6 [interface]
	// src_device). A captured frame is accepted only if its source MAC
	// matches one of these two (spec §4.5).
	IfaceMAC     net.HardwareAddr
	SrcDeviceMAC net.HardwareAddr

	// Reorder selects reorder-mode classification (scheduler.Classify) vs.
	// no-reorder push (scheduler.PushNoReorder), per the [general] reorder
	// flag (spec §4.3/§9 supplement 2).
	Reorder bool

	Telemetry *telemetry.Writer // nil disables CSV sampling ([general] save=false)
	Pad       *padstats.Tracker // nil disables windowed padding stats

	// PadLogInterval is [general] pad_log_interval: the number of pushes
	// per Pad.EndCycle() window. <= 0 means "every push" (a window of 1),
	// the same default telemetry.New applies to pad.csv sampling.
	PadLogInterval int

	Isolation Isolation
}

// Obfuscate runs the capture → classify → enqueue loop until ctx is
// cancelled; an In.Recv error is logged and the loop continues. It never returns nil
// isolation errors silently: a failed Isolate call is fatal for this task
// (spec §4.5).
func Obfuscate(ctx context.Context, cfg ObfuscateConfig) error {
	if err := isolate("obfuscate", cfg.Isolation); err != nil {
		return err
	}

	state := scheduler.NewPushState(cfg.Scheduler.Pattern())
	noReorderIdx := 0
	var lastPad float64
	var pushCount int64

	padStride := int64(cfg.PadLogInterval)
	if padStride <= 0 {
		padStride = 1
	}

	for !done(ctx) {
		frame, err := cfg.In.Recv()
		if err != nil {
			log.Printf("pipeline: obfuscate recv error: %v", err)
			continue
		}
		if !acceptedSource(frame, cfg.IfaceMAC, cfg.SrcDeviceMAC) {
			continue
		}

		if cfg.Reorder {
			cfg.Scheduler.Classify(state, frame)
		} else {
			noReorderIdx = cfg.Scheduler.PushNoReorder(noReorderIdx, frame)
		}

		if cfg.Telemetry != nil || cfg.Pad != nil {
			cur := cfg.Scheduler.CumulativePadSeconds()
			delta := cur - lastPad
			lastPad = cur
			if cfg.Pad != nil {
				cfg.Pad.Add(delta)
				pushCount++
				if pushCount%padStride == 0 {
					windowed := cfg.Pad.EndCycle()
					metrics.WindowedPadSeconds.Set(windowed)
					log.Printf("pipeline: obfuscate padding window %d: %.6fs over %d pushes", cfg.Pad.CycleCount(), windowed, padStride)
				}
			}
			if cfg.Telemetry != nil {
				cfg.Telemetry.RecordPush(delta)
			}
		}
	}
	return nil
}

// acceptedSource implements spec §4.5's source-MAC filter: "only accept
// frames whose Ethernet source MAC equals the IN interface's MAC or a
// configured source device's MAC (this filters out the machine's own
// replies echoing back via the tap)". A nil/empty srcDevice means no
// second address is configured.
func acceptedSource(frame []byte, ifaceMAC, srcDevice net.HardwareAddr) bool {
	if len(frame) < ethSrcMACOffset+6 {
		return false
	}
	src := net.HardwareAddr(frame[ethSrcMACOffset : ethSrcMACOffset+6])
	if macEqual(src, ifaceMAC) {
		return true
	}
	return len(srcDevice) > 0 && macEqual(src, srcDevice)
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
