// Package rawsock is the obfuscator's raw-socket external collaborator
// (spec §1: "the raw-socket library used to send/receive Ethernet
// frames"). It defines Channel, the interface the pipeline tasks read and
// write through, and a gopacket-backed implementation for Linux AF_PACKET
// interfaces.
package rawsock

import (
	"errors"
	"time"

	"github.com/google/gopacket/pcap"
)

// ErrClosed is returned by Recv/Send after the channel has been closed.
var ErrClosed = errors.New("rawsock: channel closed")

// Channel is a bidirectional raw Ethernet frame transport bound to one
// network interface. Implementations must be safe for one concurrent
// reader and one concurrent writer (the obfuscate/deobfuscate tasks each
// own one direction of one Channel; spec §4.5).
type Channel interface {
	// Recv blocks for the next Ethernet frame captured on the interface.
	Recv() ([]byte, error)
	// Send transmits frame on the interface.
	Send(frame []byte) error
	// HardwareAddr returns the interface's MAC address.
	HardwareAddr() []byte
	Close() error
}

// snapLen is large enough to capture a full padded frame at the largest
// permitted pattern slot (pattern.MTU) plus the outer header and Ethernet
// framing, with headroom.
const snapLen = 2048

// pcapChannel is a Channel backed by gopacket's libpcap binding, opened in
// immediate, promiscuous live-capture mode. This is the concrete adapter
// behind the external-collaborator interface the spec leaves unspecified;
// nothing in pattern/queue/scheduler/codec depends on gopacket directly.
//
// Caveat: libpcap's pcap_t is not thread-safe, so this adapter does NOT
// meet Channel's one-reader-one-writer contract on its own. In the
// conventional deployment — obfuscate/transmit on one box, deobfuscate on
// its peer — each handle is only ever read or only ever written by a
// single task, so the limitation never bites. A single-process topology
// that both reads and writes one interface needs a handle per direction.
type pcapChannel struct {
	handle *pcap.Handle
	hwAddr []byte
}

// Open binds a Channel to the named interface. hwAddr is supplied by the
// caller (resolved via the affinity package's netlink lookup) rather than
// re-derived here, since gopacket's pcap binding has no notion of a link's
// hardware address.
func Open(ifName string, hwAddr []byte) (Channel, error) {
	inactive, err := pcap.NewInactiveHandle(ifName)
	if err != nil {
		return nil, err
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snapLen); err != nil {
		return nil, err
	}
	if err := inactive.SetPromisc(true); err != nil {
		return nil, err
	}
	if err := inactive.SetTimeout(10 * time.Millisecond); err != nil {
		return nil, err
	}
	if err := inactive.SetImmediateMode(true); err != nil {
		return nil, err
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, err
	}

	return &pcapChannel{handle: handle, hwAddr: hwAddr}, nil
}

func (c *pcapChannel) Recv() ([]byte, error) {
	for {
		data, _, err := c.handle.ReadPacketData()
		if err == pcap.NextErrorTimeoutExpired {
			continue
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

func (c *pcapChannel) Send(frame []byte) error {
	return c.handle.WritePacketData(frame)
}

func (c *pcapChannel) HardwareAddr() []byte {
	return c.hwAddr
}

func (c *pcapChannel) Close() error {
	c.handle.Close()
	return nil
}
