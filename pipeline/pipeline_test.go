package pipeline_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/maxb0u/go-ditto/codec"
	"github.com/maxb0u/go-ditto/padstats"
	"github.com/maxb0u/go-ditto/pattern"
	"github.com/maxb0u/go-ditto/pipeline"
	"github.com/maxb0u/go-ditto/scheduler"
)

type fakeChannel struct {
	inbox chan []byte
	hw    net.HardwareAddr

	mu   sync.Mutex
	sent [][]byte
}

func newFakeChannel(hw net.HardwareAddr) *fakeChannel {
	return &fakeChannel{inbox: make(chan []byte, 16), hw: hw}
}

func (f *fakeChannel) Recv() ([]byte, error) {
	frame, ok := <-f.inbox
	if !ok {
		return nil, errClosed
	}
	return frame, nil
}

func (f *fakeChannel) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	return nil
}

func (f *fakeChannel) HardwareAddr() []byte { return f.hw }
func (f *fakeChannel) Close() error         { return nil }

func (f *fakeChannel) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

type sentinelError struct{ s string }

func (e *sentinelError) Error() string { return e.s }

var errClosed = &sentinelError{"fakeChannel closed"}

func buildFrame(srcMAC net.HardwareAddr, length int) []byte {
	frame := make([]byte, length)
	copy(frame[6:12], srcMAC)
	return frame
}

var testEP = codec.TunnelEndpoints{Src: net.ParseIP("10.0.0.1").To4(), Dst: net.ParseIP("10.0.0.2").To4()}

func TestObfuscateFiltersSourceMACAndClassifies(t *testing.T) {
	ifaceMAC := net.HardwareAddr{1, 2, 3, 4, 5, 6}
	otherMAC := net.HardwareAddr{9, 9, 9, 9, 9, 9}

	tbl, err := pattern.New([]int{500, 1000, 1400})
	if err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(tbl, testEP, 1000)

	in := newFakeChannel(ifaceMAC)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- pipeline.Obfuscate(ctx, pipeline.ObfuscateConfig{
			In:        in,
			Scheduler: sched,
			IfaceMAC:  ifaceMAC,
			Reorder:   true,
		})
	}()

	in.inbox <- buildFrame(ifaceMAC, 400)
	in.inbox <- buildFrame(otherMAC, 400)

	time.Sleep(50 * time.Millisecond)
	cancel()
	close(in.inbox)
	if err := <-result; err != nil {
		t.Fatalf("Obfuscate() = %v", err)
	}

	frame, real := sched.Pop(0)
	if !real {
		t.Fatal("expected a real (non-chaff) frame in slot 0")
	}
	if len(frame) != 520 {
		t.Fatalf("len(frame) = %d, want 520", len(frame))
	}

	_, real = sched.Pop(0)
	if real {
		t.Fatal("expected only one accepted frame; the wrong-source-MAC frame should have been dropped")
	}
}

func TestObfuscateEndsPadCycleEveryStride(t *testing.T) {
	ifaceMAC := net.HardwareAddr{1, 2, 3, 4, 5, 6}

	tbl, err := pattern.New([]int{500, 1000, 1400})
	if err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(tbl, testEP, 1000)
	pad := padstats.NewTracker()

	in := newFakeChannel(ifaceMAC)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- pipeline.Obfuscate(ctx, pipeline.ObfuscateConfig{
			In:             in,
			Scheduler:      sched,
			IfaceMAC:       ifaceMAC,
			Reorder:        true,
			Pad:            pad,
			PadLogInterval: 2,
		})
	}()

	// Three pushes at stride 2 should end exactly one pad cycle (after the
	// second push); the third push starts a new, not-yet-ended cycle.
	in.inbox <- buildFrame(ifaceMAC, 400)
	in.inbox <- buildFrame(ifaceMAC, 400)
	in.inbox <- buildFrame(ifaceMAC, 400)

	time.Sleep(50 * time.Millisecond)
	cancel()
	close(in.inbox)
	if err := <-result; err != nil {
		t.Fatalf("Obfuscate() = %v", err)
	}

	if got := pad.CycleCount(); got != 1 {
		t.Fatalf("CycleCount() = %d, want 1 (one EndCycle per 2 pushes, 3 pushes total)", got)
	}
}

func TestTransmitCyclesSlotsAndPaces(t *testing.T) {
	tbl, err := pattern.New([]int{500, 1000})
	if err != nil {
		t.Fatal(err)
	}
	sched := scheduler.New(tbl, testEP, 100000)

	out := newFakeChannel(net.HardwareAddr{1, 2, 3, 4, 5, 6})
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- pipeline.Transmit(ctx, pipeline.TransmitConfig{
			Out:       out,
			Scheduler: sched,
			PPS:       100000,
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-result; err != nil {
		t.Fatalf("Transmit() = %v", err)
	}

	sent := out.sentFrames()
	if len(sent) < 4 {
		t.Fatalf("sent %d frames, want at least 4", len(sent))
	}
	for i, frame := range sent[:4] {
		want := 520
		if i%2 == 1 {
			want = 1020
		}
		if len(frame) != want {
			t.Fatalf("sent[%d] len = %d, want %d (slot rotation law)", i, len(frame), want)
		}
	}
}

func TestDeobfuscateDropsChaffAndForwardsReal(t *testing.T) {
	localIP := net.ParseIP("10.0.0.2").To4()
	peerIP := net.ParseIP("10.0.0.1").To4()
	opts := codec.EgressOptions{LocalIP: localIP, IsLocal: true}

	real, err := codec.Wrap([]byte{0xAA, 0xBB, 0x01, 0x02}, 500, codec.TunnelEndpoints{Src: peerIP, Dst: localIP})
	if err != nil {
		t.Fatal(err)
	}
	chaff := codec.ChaffTemplate(500, codec.TunnelEndpoints{Src: peerIP, Dst: localIP})

	in := newFakeChannel(nil)
	out := newFakeChannel(nil)
	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		result <- pipeline.Deobfuscate(ctx, pipeline.DeobfuscateConfig{In: in, Out: out, Opts: opts})
	}()

	in.inbox <- real
	in.inbox <- chaff

	time.Sleep(50 * time.Millisecond)
	cancel()
	close(in.inbox)
	if err := <-result; err != nil {
		t.Fatalf("Deobfuscate() = %v", err)
	}

	sent := out.sentFrames()
	if len(sent) != 1 {
		t.Fatalf("forwarded %d frames, want 1 (chaff must be dropped)", len(sent))
	}
	if sent[0][0] != 0xAA || sent[0][1] != 0xBB {
		t.Fatalf("forwarded frame = %v, want original payload", sent[0])
	}
}
