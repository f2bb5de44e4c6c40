package codec

import (
	"errors"

	"github.com/maxb0u/go-ditto/pattern"
)

// ErrFrameTooLarge is returned by Wrap when the captured frame is longer
// than the slot length it is asked to fit (spec §3 invariant I3).
var ErrFrameTooLarge = errors.New("codec: frame exceeds slot length")

// Wrap implements spec §4.4.1: prepend a 20-byte outer IPv4 header encoding
// the true length, then zero-fill out to slotLen+20 bytes. frame must
// already fit within slotLen or ErrFrameTooLarge is returned — the caller
// (the scheduler's classification step) is expected to have chosen slotLen
// as the smallest fitting slot, so this is a defensive check, not the
// classification itself.
func Wrap(frame []byte, slotLen int, ep TunnelEndpoints) ([]byte, error) {
	if len(frame) > slotLen {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, slotLen+pattern.IPHeaderLen)
	copy(buf[pattern.IPHeaderLen:], frame)
	writeOuterHeader(buf, ep, len(frame)+pattern.IPHeaderLen)
	return buf, nil
}

// ChaffTemplate implements spec §4.4.2: a buffer of zeros of length
// slotLen+20 with a valid outer IPv4 header whose total_length is the full
// padded size slotLen+20 (not the length of any inner frame, since there is
// none). Because the inner bytes after the outer header are all zero, the
// egress classifier in Process recognizes this as chaff via the doubly-zero
// byte pair at offsets 22 and 23.
func ChaffTemplate(slotLen int, ep TunnelEndpoints) []byte {
	buf := make([]byte, slotLen+pattern.IPHeaderLen)
	writeOuterHeader(buf, ep, slotLen+pattern.IPHeaderLen)
	return buf
}
