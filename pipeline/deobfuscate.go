package pipeline

import (
	"context"
	"log"
	"net"

	"github.com/maxb0u/go-ditto/codec"
	"github.com/maxb0u/go-ditto/rawsock"
)

// DeobfuscateConfig wires the deobfuscate task (spec §4.5): classify,
// unwrap, truncate, and optionally peel/rewrite each received frame before
// forwarding it to Out; chaff and wrong-direction frames are silently
// dropped by codec.Process.
type DeobfuscateConfig struct {
	In  rawsock.Channel
	Out rawsock.Channel

	Opts codec.EgressOptions

	// Backbone enables the post-deobfuscation rewrite of spec §4.4.5.
	// OutputMAC and NextHop are only consulted when Backbone is true.
	Backbone  bool
	OutputMAC net.HardwareAddr
	NextHop   net.IP

	Isolation Isolation
}

// Deobfuscate runs the capture → classify/unwrap → forward loop until ctx
// is cancelled; an In.Recv error is logged and the loop continues.
func Deobfuscate(ctx context.Context, cfg DeobfuscateConfig) error {
	if err := isolate("deobfuscate", cfg.Isolation); err != nil {
		return err
	}

	for !done(ctx) {
		buf, err := cfg.In.Recv()
		if err != nil {
			log.Printf("pipeline: deobfuscate recv error: %v", err)
			continue
		}

		frame, ok := codec.Process(buf, cfg.Opts)
		if !ok {
			continue
		}

		if cfg.Backbone {
			frame = codec.BackboneRewrite(frame, cfg.OutputMAC, cfg.NextHop)
		}

		if err := cfg.Out.Send(frame); err != nil {
			log.Printf("pipeline: deobfuscate send error: %v", err)
		}
	}
	return nil
}
