// Package config decodes and validates the obfuscator's TOML configuration
// document (spec §6).
package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/BurntSushi/toml"
)

// Errors returned by Load when the document fails validation, per the
// teacher's per-package sentinel style (netlink.ErrNotType20, cache.ErrLocal,
// ...). ErrInvalidIP and ErrMissingInterface are wrapped with the offending
// key via fmt.Errorf; ErrInvalidRate and ErrInvalidPriority are returned
// as is.
var (
	ErrInvalidRate      = errors.New("config: general.rate must be > 0")
	ErrInvalidPriority  = errors.New("config: isolation.priority must be in 1..99 when any isolate_* flag is set")
	ErrInvalidIP        = errors.New("config: ip address is not a valid IPv4 address")
	ErrMissingInterface = errors.New("config: interface name must not be empty")
)

// General holds [general]: the target throughput, telemetry sampling, and
// feature flags.
type General struct {
	Rate           float64 `toml:"rate"`
	PadLogInterval float64 `toml:"pad_log_interval"`
	Save           bool    `toml:"save"`
	Local          bool    `toml:"local"`
	Log            bool    `toml:"log"`
	HWObfuscation  bool    `toml:"hw_obfuscation"`
	Backbone       bool    `toml:"backbone"`
	Reorder        bool    `toml:"reorder"`
}

// IP holds [ip]: the outer tunnel endpoints.
type IP struct {
	Src string `toml:"src"`
	Dst string `toml:"dst"`
}

// Isolation holds [isolation]: per-task CPU pinning and real-time priority.
type Isolation struct {
	IsolateObfuscate   bool `toml:"isolate_obfuscate"`
	IsolateSend        bool `toml:"isolate_send"`
	IsolateDeobfuscate bool `toml:"isolate_deobfuscate"`
	CoreObfuscate      int  `toml:"core_obfuscate"`
	CoreSend           int  `toml:"core_send"`
	CoreDeobfuscate    int  `toml:"core_deobfuscate"`
	Priority           int  `toml:"priority"`
}

// Interface holds [interface]: the capture/emit device names.
type Interface struct {
	NoObf     string `toml:"no_obf"`
	Obf       string `toml:"obf"`
	SrcDevice string `toml:"src_device"`
}

// Config is the fully decoded and validated configuration document.
type Config struct {
	General   General   `toml:"general"`
	IP        IP        `toml:"ip"`
	Isolation Isolation `toml:"isolation"`
	Interface Interface `toml:"interface"`
}

// Load decodes path as TOML and validates it per spec §6. Any failure
// (parse error or a validation error below) is meant to be fatal at the
// CLI boundary via rtx.Must, matching the teacher's main.go.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.General.Rate <= 0 {
		return ErrInvalidRate
	}
	// Priority is only consumed when a task is actually isolated; a config
	// that leaves isolation off may leave it unset.
	isolated := c.Isolation.IsolateObfuscate || c.Isolation.IsolateSend || c.Isolation.IsolateDeobfuscate
	if isolated && (c.Isolation.Priority < 1 || c.Isolation.Priority > 99) {
		return ErrInvalidPriority
	}
	if net.ParseIP(c.IP.Src).To4() == nil {
		return fmt.Errorf("%w: ip.src=%q", ErrInvalidIP, c.IP.Src)
	}
	if net.ParseIP(c.IP.Dst).To4() == nil {
		return fmt.Errorf("%w: ip.dst=%q", ErrInvalidIP, c.IP.Dst)
	}
	if c.Interface.Obf == "" {
		return fmt.Errorf("%w: interface.obf", ErrMissingInterface)
	}
	if c.Interface.NoObf == "" {
		return fmt.Errorf("%w: interface.no_obf", ErrMissingInterface)
	}
	return nil
}

// SrcIP parses IP.Src as a net.IP; Load guarantees this succeeds.
func (c *Config) SrcIP() net.IP {
	return net.ParseIP(c.IP.Src).To4()
}

// DstIP parses IP.Dst as a net.IP; Load guarantees this succeeds.
func (c *Config) DstIP() net.IP {
	return net.ParseIP(c.IP.Dst).To4()
}
