package codec

import "net"

// ethHeaderLen is the length of an Ethernet header (dst MAC, src MAC,
// EtherType), used only by the backbone rewrite offsets below.
const ethHeaderLen = 14

// BackboneRewrite implements the optional post-deobfuscation rewrite of
// spec §4.4.5: clone the deobfuscated frame and overwrite the inner source
// MAC with the output interface's address, and the inner-inner destination
// IPv4 with the configured next hop. It is used only in "backbone" mode
// (spec §1 Non-goals: single next-hop rewrite, no general routing).
//
// frame is the already-recovered frame returned by Process — the outer
// 20-byte IP header has already been stripped by the caller — so offsets
// here are relative to frame's own start, not the original padded buffer.
func BackboneRewrite(frame []byte, outputMAC net.HardwareAddr, nextHop net.IP) []byte {
	clone := make([]byte, len(frame))
	copy(clone, frame)

	srcMACStart := 6
	srcMACEnd := 12
	if srcMACEnd <= len(clone) {
		copy(clone[srcMACStart:srcMACEnd], outputMAC)
	}

	dstIPStart := ethHeaderLen + 16
	dstIPEnd := ethHeaderLen + 20
	if dstIPEnd <= len(clone) {
		copy(clone[dstIPStart:dstIPEnd], nextHop.To4())
	}

	return clone
}
