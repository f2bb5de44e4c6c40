// Package telemetry writes the three CSV files spec §6 defines when
// [general] save = true: parameters.csv (run configuration), pad.csv
// (sampled padding cost), and data.csv (reserved for per-tick latency).
//
// It is adapted from the teacher's saver package: saver opens one
// zstd-compressed, append-only file per TCP connection and rotates it on a
// timer; telemetry creates three plain CSV files once at startup ("All
// open-truncate-on-start", spec §6), writes parameters.csv only then, and
// rewrites pad.csv and data.csv in full from an in-memory row buffer on each
// Flush or Close call using github.com/gocarina/gocsv, the same library
// the teacher's cmd/csvtool uses to marshal snapshot.Snapshot rows.
package telemetry

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"
)

// PadSample is one row of pad.csv: spec §6, "Iteration,Pad sampled every
// pad_log_interval pushes" and §9 supplement 1 (stride sampling, not every
// push).
type PadSample struct {
	Iteration int64   `csv:"Iteration"`
	Pad       float64 `csv:"Pad"`
}

// LatencySample is one row of data.csv, spec §6: "reserved for per-tick
// latency". The transmit task feeds this from the pacing loop (§4.5); the
// teacher has no direct analogue, since it measures NetworkMessage
// round-trips rather than pacer latency, but the periodic-CSV shape is the
// same as PadSample.
type LatencySample struct {
	Iteration int64 `csv:"Iteration"`
	LatencyNS int64 `csv:"LatencyNS"`
}

// Writer owns the three telemetry files for one run. All fields guarded by
// mu are mutated from whichever pipeline task calls RecordPush/
// RecordLatency; Flush/Close may be called concurrently with those from a
// shutdown goroutine.
type Writer struct {
	mu sync.Mutex

	padPath  string
	dataPath string

	stride    int64
	pushCount int64

	padSamples  []PadSample
	dataSamples []LatencySample
}

// New opens parameters.csv immediately (writing the run's fixed
// configuration, per spec §6) and truncates pad.csv/data.csv so every file
// exists and is empty at startup even if nothing is ever sampled. stride is
// pad_log_interval from [general]; padLogInterval <= 0 means "every push".
func New(dir string, intervalNS int64, patternSlots []int, padLogInterval int) (*Writer, error) {
	if err := writeParameters(dir, intervalNS, patternSlots); err != nil {
		return nil, err
	}

	stride := int64(padLogInterval)
	if stride <= 0 {
		stride = 1
	}

	w := &Writer{
		padPath:  filepath.Join(dir, "pad.csv"),
		dataPath: filepath.Join(dir, "data.csv"),
		stride:   stride,
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return w, nil
}

// writeParameters implements spec §6's literal parameters.csv shape: "one
// header row plus interval,<ns> and pattern,<list>" — not a regular
// tabular CSV of uniform rows, so it is written directly with
// encoding/csv rather than gocsv's struct marshalling.
func writeParameters(dir string, intervalNS int64, patternSlots []int) error {
	f, err := os.Create(filepath.Join(dir, "parameters.csv"))
	if err != nil {
		return fmt.Errorf("telemetry: creating parameters.csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Key", "Value"}); err != nil {
		return err
	}
	if err := w.Write([]string{"interval", fmt.Sprintf("%d", intervalNS)}); err != nil {
		return err
	}
	pattern := make([]string, len(patternSlots))
	for i, l := range patternSlots {
		pattern[i] = fmt.Sprintf("%d", l)
	}
	if err := w.Write([]string{"pattern", fmt.Sprintf("%v", pattern)}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// RecordPush samples the padding cost of one classified push, per spec §6/
// §9: a row is only appended every stride-th push, not every push.
func (w *Writer) RecordPush(pad float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pushCount++
	if w.pushCount%w.stride != 0 {
		return
	}
	w.padSamples = append(w.padSamples, PadSample{Iteration: w.pushCount, Pad: pad})
}

// RecordLatency appends a per-tick latency sample to data.csv's in-memory
// buffer (spec §6: "data.csv (reserved for per-tick latency)").
func (w *Writer) RecordLatency(iteration int64, latencyNS int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dataSamples = append(w.dataSamples, LatencySample{Iteration: iteration, LatencyNS: latencyNS})
}

// Flush rewrites pad.csv and data.csv in full from the current in-memory
// buffers. The teacher rotates per-connection files on a 10-minute timer;
// telemetry files are small and few enough that a full rewrite on every
// flush is simpler and still satisfies "open-truncate-on-start".
func (w *Writer) Flush() error {
	w.mu.Lock()
	pad := make([]PadSample, len(w.padSamples))
	copy(pad, w.padSamples)
	data := make([]LatencySample, len(w.dataSamples))
	copy(data, w.dataSamples)
	w.mu.Unlock()

	if err := marshalFile(w.padPath, &pad); err != nil {
		return err
	}
	return marshalFile(w.dataPath, &data)
}

// Close flushes one final time. Telemetry keeps no open file handles
// between flushes, so there is nothing else to release.
func (w *Writer) Close() error {
	return w.Flush()
}

func marshalFile[T any](path string, rows *[]T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("telemetry: creating %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("telemetry: writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
