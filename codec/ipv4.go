// Package codec implements the obfuscation wire format from spec §3/§4.4:
// wrap-and-pad on ingress, and classify/unwrap/truncate/peel on egress.
package codec

import (
	"encoding/binary"
	"net"
)

// outerHeaderLen is the size of the outer IPv4 header prepended to every
// frame (spec §3: "the +20 is the outer IPv4 header").
const outerHeaderLen = 20

// ProtocolIPIP is the IP protocol number for IP-in-IP encapsulation.
const ProtocolIPIP = 4

// outerHeader is a []byte alias over the 20-byte outer IPv4 header, in the
// style of a raw-bytes wire-format view rather than a parsed struct — the
// header is written and read in place, never copied into a Go struct.
type outerHeader []byte

func newOuterHeader(buf []byte) outerHeader {
	return outerHeader(buf[:outerHeaderLen])
}

func (h outerHeader) setVersionIHL() {
	h[0] = 0x45 // version=4, IHL=5 (20-byte header, no options)
}

func (h outerHeader) setTotalLength(n int) {
	binary.BigEndian.PutUint16(h[2:4], uint16(n))
}

func (h outerHeader) totalLength() int {
	return int(binary.BigEndian.Uint16(h[2:4]))
}

func (h outerHeader) setTTL(ttl byte) {
	h[8] = ttl
}

func (h outerHeader) setProtocol(proto byte) {
	h[9] = proto
}

func (h outerHeader) clearChecksum() {
	h[10] = 0
	h[11] = 0
}

func (h outerHeader) setChecksum(sum uint16) {
	binary.BigEndian.PutUint16(h[10:12], sum)
}

func (h outerHeader) setSource(ip net.IP) {
	copy(h[12:16], ip.To4())
}

func (h outerHeader) setDestination(ip net.IP) {
	copy(h[16:20], ip.To4())
}

func (h outerHeader) source() net.IP {
	ip := make(net.IP, 4)
	copy(ip, h[12:16])
	return ip
}

// ipv4Checksum computes the standard Internet checksum (RFC 791 §3.1) over
// an even-length header with the checksum field already zeroed.
func ipv4Checksum(header []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(header); i += 2 {
		sum += uint32(header[i])<<8 | uint32(header[i+1])
	}
	if len(header)%2 == 1 {
		sum += uint32(header[len(header)-1]) << 8
	}
	for sum > 0xFFFF {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// TunnelEndpoints are the outer IPv4 addresses of the obfuscator and its
// peer, carried on every frame per spec §3.
type TunnelEndpoints struct {
	Src net.IP
	Dst net.IP
}

// writeOuterHeader fills buf[0:20] with an outer IPv4 header whose
// total_length is totalLen, per spec §3.
func writeOuterHeader(buf []byte, ep TunnelEndpoints, totalLen int) {
	h := newOuterHeader(buf)
	h.setVersionIHL()
	h.setTotalLength(totalLen)
	h.setTTL(64)
	h.setProtocol(ProtocolIPIP)
	h.setSource(ep.Src)
	h.setDestination(ep.Dst)
	h.clearChecksum()
	h.setChecksum(ipv4Checksum(buf[:outerHeaderLen]))
}
