// Command obfuscator is the CLI entry point of spec §6: "A single
// executable; first positional argument is the path to the configuration
// document." It wires the pattern table, scheduler, and raw channels
// described by that document and launches the three pipeline tasks of
// spec §4.5, mirroring the shape of the teacher's main.go (flag parsing,
// rtx.Must-driven fatal startup errors, a Prometheus metrics server
// started before the hot loops, and a blocking run until shutdown).
package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/maxb0u/go-ditto/affinity"
	"github.com/maxb0u/go-ditto/codec"
	"github.com/maxb0u/go-ditto/config"
	"github.com/maxb0u/go-ditto/padstats"
	"github.com/maxb0u/go-ditto/pattern"
	"github.com/maxb0u/go-ditto/pipeline"
	"github.com/maxb0u/go-ditto/rawsock"
	"github.com/maxb0u/go-ditto/scheduler"
	"github.com/maxb0u/go-ditto/telemetry"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	promPort    = flag.String("prom", ":9090", "Prometheus metrics export address and port.")
	outputDir   = flag.String("output", ".", "Directory for CSV telemetry files when [general] save=true.")
	patternFlag = flag.String("pattern", "500,1000,1400", "Comma-separated, non-decreasing PATTERN slot lengths in bytes.")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	if flag.NArg() < 1 {
		log.Fatal("usage: obfuscator <config.toml>")
	}

	cfg, err := config.Load(flag.Arg(0))
	rtx.Must(err, "Could not load configuration %s", flag.Arg(0))

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	defer promSrv.Shutdown(context.Background())

	slots, err := parsePattern(*patternFlag)
	rtx.Must(err, "Could not parse -pattern")
	tbl, err := pattern.New(slots)
	rtx.Must(err, "Could not build pattern table")

	pps := tbl.PacketsPerSecond(cfg.General.Rate)
	ep := codec.TunnelEndpoints{Src: cfg.SrcIP(), Dst: cfg.DstIP()}
	sched := scheduler.New(tbl, ep, pps)

	// Both interfaces of spec §6 are taps on a bidirectional link: no_obf
	// carries real traffic in both directions (obfuscate reads it as IN,
	// deobfuscate writes recovered frames to it as OUT), and obf carries
	// the obfuscated wire format in both directions (transmit writes it,
	// deobfuscate reads it). See DESIGN.md for why this single-process,
	// two-interface wiring matches spec §4.4.3's "this capture point sees
	// both directions of the tunnel". Note that libpcap handles are not
	// thread-safe for a concurrent reader and writer (see rawsock), and
	// this binary always starts all three tasks, so each handle here is
	// read by one task and written by another.
	noObfMAC, _, err := affinity.LinkAttrs(cfg.Interface.NoObf)
	rtx.Must(err, "Could not resolve interface %s", cfg.Interface.NoObf)
	obfMAC, _, err := affinity.LinkAttrs(cfg.Interface.Obf)
	rtx.Must(err, "Could not resolve interface %s", cfg.Interface.Obf)

	var srcDeviceMAC net.HardwareAddr
	if cfg.Interface.SrcDevice != "" {
		mac, _, err := affinity.LinkAttrs(cfg.Interface.SrcDevice)
		rtx.Must(err, "Could not resolve interface %s", cfg.Interface.SrcDevice)
		srcDeviceMAC = mac
	}

	noObfCh, err := rawsock.Open(cfg.Interface.NoObf, noObfMAC)
	rtx.Must(err, "Could not open interface %s", cfg.Interface.NoObf)
	defer noObfCh.Close()

	obfCh, err := rawsock.Open(cfg.Interface.Obf, obfMAC)
	rtx.Must(err, "Could not open interface %s", cfg.Interface.Obf)
	defer obfCh.Close()

	padStride := int(cfg.General.PadLogInterval)

	var telem *telemetry.Writer
	var pad *padstats.Tracker
	if cfg.General.Save {
		telem, err = telemetry.New(*outputDir, pipeline.Interval(pps).Nanoseconds(), tbl.Slots(), padStride)
		rtx.Must(err, "Could not open telemetry files in %s", *outputDir)
		defer telem.Close()
		pad = padstats.NewTracker()
	}

	// Startup is done; [general] log=false silences the per-frame drop and
	// error logging on the hot paths. Fatal init errors above always print.
	if !cfg.General.Log {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("obfuscator: shutting down")
		cancel()
	}()

	priority := cfg.Isolation.Priority
	errCh := make(chan error, 3)

	go func() {
		errCh <- pipeline.Obfuscate(ctx, pipeline.ObfuscateConfig{
			In:             noObfCh,
			Scheduler:      sched,
			IfaceMAC:       noObfMAC,
			SrcDeviceMAC:   srcDeviceMAC,
			Reorder:        cfg.General.Reorder,
			Telemetry:      telem,
			Pad:            pad,
			PadLogInterval: padStride,
			Isolation: pipeline.Isolation{
				Enabled: cfg.Isolation.IsolateObfuscate, Core: cfg.Isolation.CoreObfuscate, Priority: priority,
			},
		})
	}()

	go func() {
		errCh <- pipeline.Transmit(ctx, pipeline.TransmitConfig{
			Out:       obfCh,
			Scheduler: sched,
			PPS:       pps,
			Telemetry: telem,
			Isolation: pipeline.Isolation{
				Enabled: cfg.Isolation.IsolateSend, Core: cfg.Isolation.CoreSend, Priority: priority,
			},
		})
	}()

	go func() {
		errCh <- pipeline.Deobfuscate(ctx, pipeline.DeobfuscateConfig{
			In:  obfCh,
			Out: noObfCh,
			Opts: codec.EgressOptions{
				LocalIP:       cfg.SrcIP(),
				IsLocal:       cfg.General.Local,
				HWObfuscation: cfg.General.HWObfuscation,
			},
			Backbone:  cfg.General.Backbone,
			OutputMAC: noObfMAC,
			NextHop:   cfg.DstIP(),
			Isolation: pipeline.Isolation{
				Enabled: cfg.Isolation.IsolateDeobfuscate, Core: cfg.Isolation.CoreDeobfuscate, Priority: priority,
			},
		})
	}()

	for i := 0; i < 3; i++ {
		if err := <-errCh; err != nil {
			log.Printf("obfuscator: task exited: %v", err)
			cancel()
			os.Exit(1)
		}
	}
}

func parsePattern(s string) ([]int, error) {
	return pattern.ParseCSV(s)
}
