package codec

import (
	"fmt"
	"net"
	"time"

	"github.com/m-lab/go/logx"

	"github.com/maxb0u/go-ditto/metrics"
	"github.com/maxb0u/go-ditto/pattern"
)

// malformedHeaderLog rate-limits the "log, forward raw buffer" warning of
// spec §7 to once per second — a busy, lossy link can otherwise flood the
// log with one line per corrupted frame. Matches the teacher's
// snapshot.oneSecondLog (logx.NewLogEvery), repurposed from "tcpinfo
// struct too small" warnings to outer-header recovery failures.
var malformedHeaderLog = logx.NewLogEvery(nil, time.Second)

// EgressOptions carries the three flags spec §4.4.3 passes to the egress
// path: the local tunnel endpoint, which side of the tunnel this tap sits
// on, and whether a hardware-switch pad needs peeling first.
type EgressOptions struct {
	LocalIP       net.IP
	IsLocal       bool
	HWObfuscation bool
}

// chaffSentinelOffset is the offset, within the whole buffer, of the
// inner frame's byte 2 — i.e. IPHeaderLen+2. Spec §3: "bytes at offsets
// 20+2 and 20+3 of the buffer ... in a real wrapped frame are the inner
// total-length field". Both zero marks chaff.
const chaffSentinelOffset = pattern.IPHeaderLen + 2

// Process implements spec §4.4.3: direction filter, chaff check, length
// recovery, and optional hardware-pad peel. It returns (frame, true) for a
// real frame to forward, or (nil, false) for chaff or a wrong-direction
// frame that must be silently dropped.
func Process(buf []byte, opts EgressOptions) ([]byte, bool) {
	if len(buf) < pattern.IPHeaderLen {
		return nil, false
	}

	src := newOuterHeader(buf).source()
	fromLocal := src.Equal(opts.LocalIP)
	if fromLocal == opts.IsLocal {
		// Wrong direction: this capture point sees both directions of the
		// tunnel, and this frame is moving the way we already sent it.
		return nil, false
	}

	// A buffer shorter than chaffSentinelOffset+2 has no byte 22/23 to
	// inspect — a truncated capture or a legitimately tiny pattern slot
	// (e.g. L=1 wraps to a 21-byte frame). Drop it the same way a buffer
	// shorter than the outer header is dropped, rather than indexing past
	// the end of buf (spec §7: nothing on the hot path panics).
	if len(buf) < chaffSentinelOffset+2 {
		return nil, false
	}

	if buf[chaffSentinelOffset] == 0 && buf[chaffSentinelOffset+1] == 0 {
		return nil, false
	}

	frame := recoverFrame(buf)
	if opts.HWObfuscation {
		frame = peelTofino(frame)
	}
	return frame, true
}

// recoverFrame implements spec §4.4.3 step 4: parse the outer total_length
// and truncate the padding. On a malformed header it logs and returns the
// raw buffer, per spec §7's "log, forward raw buffer" policy.
func recoverFrame(buf []byte) []byte {
	total := newOuterHeader(buf).totalLength()
	if total > pattern.IPHeaderLen && total <= len(buf) {
		return buf[pattern.IPHeaderLen:total]
	}
	metrics.DeobfuscateErrorsTotal.Inc()
	malformedHeaderLog.Println(fmt.Sprintf("codec: outer total_length %d out of range for %d-byte buffer, forwarding raw", total, len(buf)))
	return buf
}
