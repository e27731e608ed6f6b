// Package acceptance verifies the DMA write engine end to end. It builds a
// platform around the engine, runs transfers through it and checks host
// memory byte by byte.
package acceptance

import (
	"fmt"
	"os"

	"github.com/sarchlab/pciedma/mem"
	"go.yaml.in/yaml/v3"
)

// Config describes the platform that runs the transfers.
type Config struct {
	BusWidthBits       int    `yaml:"bus_width_bits"`
	SegCount           int    `yaml:"seg_count"`
	SegDataWidth       int    `yaml:"seg_data_width"`
	SegAddrWidth       int    `yaml:"seg_addr_width"`
	RAMSelWidth        int    `yaml:"ram_sel_width"`
	PCIeAddrWidth      int    `yaml:"pcie_addr_width"`
	LenWidth           int    `yaml:"len_width"`
	TagWidth           int    `yaml:"tag_width"`
	MaxPayloadSizeCode int    `yaml:"max_payload_size_code"`
	RequesterID        uint16 `yaml:"requester_id"`
	RequesterIDEnable  bool   `yaml:"requester_id_enable"`
	FetchWindow        int    `yaml:"fetch_window"`
	StatusQueueSize    int    `yaml:"status_queue_size"`
	SegLatency         int    `yaml:"seg_latency"`
	SegLatencySkew     int    `yaml:"seg_latency_skew"`
	FreqMHz            int    `yaml:"freq_mhz"`
	HostBase           uint64 `yaml:"host_base"`
	HostSize           uint64 `yaml:"host_size"`
	MaxCycles          uint64 `yaml:"max_cycles"`
}

// DefaultConfig returns the configuration of a bus that is busWidthBits
// wide. The segment layout follows the bus: max(2, 2*bits/128) segments, each
// as wide as two beats split among the segments.
func DefaultConfig(busWidthBits int) Config {
	segCount := max(2, 2*busWidthBits/128)

	return Config{
		BusWidthBits:    busWidthBits,
		SegCount:        segCount,
		SegDataWidth:    2 * busWidthBits / 8 / segCount,
		SegAddrWidth:    12,
		RAMSelWidth:     2,
		PCIeAddrWidth:   64,
		LenWidth:        16,
		TagWidth:        8,
		StatusQueueSize: 4,
		SegLatency:      2,
		SegLatencySkew:  1,
		FreqMHz:         250,
		HostSize:        16 * mem.MB,
		MaxCycles:       100000,
	}
}

// LoadConfig reads a YAML file. Keys that the file does not set keep the
// defaults of a 128-bit bus, or of the bus width the file sets.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	return ParseConfig(raw)
}

// ParseConfig parses a YAML document.
func ParseConfig(raw []byte) (Config, error) {
	var probe struct {
		BusWidthBits int `yaml:"bus_width_bits"`
	}

	if err := yaml.Unmarshal(raw, &probe); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if probe.BusWidthBits == 0 {
		probe.BusWidthBits = 128
	}

	c := DefaultConfig(probe.BusWidthBits)
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate reports the first setting that cannot be built.
func (c Config) Validate() error {
	switch c.BusWidthBits {
	case 128, 256, 512:
	default:
		return fmt.Errorf("bus width %d is not 128, 256 or 512 bits",
			c.BusWidthBits)
	}

	if c.SegCount <= 0 || c.SegCount&(c.SegCount-1) != 0 {
		return fmt.Errorf("segment count %d is not a power of two", c.SegCount)
	}

	if c.SegDataWidth <= 0 || c.SegDataWidth&(c.SegDataWidth-1) != 0 {
		return fmt.Errorf("segment data width %d is not a power of two",
			c.SegDataWidth)
	}

	if c.MaxPayloadSizeCode < 0 || c.MaxPayloadSizeCode > 5 {
		return fmt.Errorf("max payload size code %d is not in [0, 5]",
			c.MaxPayloadSizeCode)
	}

	if c.TagWidth <= 0 || c.TagWidth > 8 {
		return fmt.Errorf("tag width %d is not in [1, 8]", c.TagWidth)
	}

	if c.FreqMHz <= 0 {
		return fmt.Errorf("frequency %d MHz must be positive", c.FreqMHz)
	}

	if c.HostSize < 8*mem.KB {
		return fmt.Errorf("host memory of %d bytes is too small", c.HostSize)
	}

	return nil
}

// BusWidth returns the number of bytes per beat.
func (c Config) BusWidth() int {
	return c.BusWidthBits / 8
}

// NextTag returns the tag after tag. Tags count up from 1 and wrap at the
// tag width.
func (c Config) NextTag(tag uint64) uint64 {
	return (tag + 1) % (1 << c.TagWidth)
}
