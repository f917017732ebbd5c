package machine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
)

// CPUIdentity is the vendor, family and model of the host processor.
type CPUIdentity struct {
	Vendor string
	Family int
	Model  int
}

// IsAMD reports whether the processor is made by AMD.
func (c CPUIdentity) IsAMD() bool {
	return strings.Contains(c.Vendor, "AMD")
}

// UnknownGeneration is reported for AMD processors newer than the known
// register layouts.
const UnknownGeneration = "unknown"

// ErrNoPrefetcherControl is returned for processors whose prefetcher
// registers are not known.
var ErrNoPrefetcherControl = errors.New("no prefetcher control for this processor")

// Generation names the prefetcher register layout of the processor.
func (c CPUIdentity) Generation() string {
	if !c.IsAMD() {
		return "intel"
	}
	switch {
	case c.Family == 25 && (c.Model == 17 || c.Model == 144):
		return "zen4"
	case c.Family == 25:
		return "zen3"
	case c.Family == 26 && c.Model == 2:
		return "zen5"
	case c.Family >= 26:
		return UnknownGeneration
	default:
		return "zen1/2"
	}
}

// DetectCPU identifies the first processor reported by the host.
func DetectCPU(ctx context.Context) (CPUIdentity, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return CPUIdentity{}, fmt.Errorf("read cpu info: %w", err)
	}
	if len(infos) == 0 {
		return CPUIdentity{}, fmt.Errorf("read cpu info: no processors reported")
	}
	id := CPUIdentity{Vendor: infos[0].VendorID}
	id.Family, _ = strconv.Atoi(infos[0].Family)
	id.Model, _ = strconv.Atoi(infos[0].Model)
	return id, nil
}

// MSRWrite is one model-specific register write applied to every CPU.
type MSRWrite struct {
	Register string
	Value    string
}

var prefetcherMSRs = map[string]map[bool][]MSRWrite{
	"intel": {
		true:  {{"0x1a4", "0x0"}},
		false: {{"0x1a4", "0x2f"}},
	},
	"zen3": {
		true: {
			{"0xc0011020", "0x4480000000000"},
			{"0xc0011021", "0x2000000c0"},
			{"0xc0011022", "0xc000000401500000"},
			{"0xc001102b", "0x2000cc15"},
		},
		false: {
			{"0xc0011020", "0x4480000000000"},
			{"0xc0011021", "0x1c000200000040"},
			{"0xc0011022", "0xc000000401570000"},
			{"0xc001102b", "0x2000cc10"},
		},
	},
	"zen4": {
		true: {
			{"0xc0011020", "0x4400200000000"},
			{"0xc0011021", "0x4000000000040"},
			{"0xc0011022", "0x8680000401500000"},
			{"0xc001102b", "0x2040cc15"},
		},
		false: {
			{"0xc0011020", "0x4400000000000"},
			{"0xc0011021", "0x4000000000040"},
			{"0xc0011022", "0x8680000401570000"},
			{"0xc001102b", "0x2040cc10"},
		},
	},
	"zen5": {
		true: {
			{"0xc0011020", "0x4004400000000000"},
			{"0xc0011021", "0x20000000000040"},
			{"0xc0011022", "0x370000000000000"},
			{"0xc001102b", "0x50cc15"},
		},
		false: {
			{"0xc0011020", "0x4004400000000000"},
			{"0xc0011021", "0x20000000000040"},
			{"0xc0011022", "0x370000000000000"},
			{"0xc001102b", "0x50cc14"},
		},
	},
	"zen1/2": {
		false: {
			{"0xc0011020", "0x0"},
			{"0xc0011021", "0x40"},
			{"0xc0011022", "0x1510000"},
			{"0xc001102b", "0x2000cc16"},
		},
	},
}

// PrefetcherWrites returns the register writes that turn the hardware
// prefetchers of id on or off.
func PrefetcherWrites(id CPUIdentity, on bool) ([]MSRWrite, error) {
	gen := id.Generation()
	if gen == UnknownGeneration {
		return nil, fmt.Errorf("%w (family %d model %d)", ErrNoPrefetcherControl, id.Family, id.Model)
	}
	writes, ok := prefetcherMSRs[gen][on]
	if !ok {
		return nil, fmt.Errorf("no prefetcher %s sequence for %s (family %d model %d)", onOff(on), gen, id.Family, id.Model)
	}
	return writes, nil
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
