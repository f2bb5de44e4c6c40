package affinity

import (
	"fmt"

	vnetlink "github.com/vishvananda/netlink"
)

// LinkAttrs resolves an interface's hardware address and MTU by name, for
// the rawsock.Open caller and for the backbone rewrite of spec §4.4.5
// (which needs the OBF/OUT interface's MAC). This repurposes
// vishvananda/netlink for interface introspection rather than route
// programming; the spec carries no general routing (§1 Non-goals), so
// LinkByName/Attrs is the only corner of that library this system needs.
func LinkAttrs(name string) (hwAddr []byte, mtu int, err error) {
	link, err := vnetlink.LinkByName(name)
	if err != nil {
		return nil, 0, fmt.Errorf("affinity: resolving interface %q: %w", name, err)
	}
	attrs := link.Attrs()
	return attrs.HardwareAddr, attrs.MTU, nil
}
