package cardreset

import "time"

type flashParams struct {
	name string

	tPP        time.Duration
	tErase4KB  time.Duration
	tErase64KB time.Duration
	tWriteSR   time.Duration
}

var (
	flashIDMacronixMX25L3233F = FlashID{0xC2, 0x20, 0x16}
	flashIDGigaDeviceGD25Q80E = FlashID{0xC8, 0x40, 0x14}
)

var knownFlash = map[FlashID]flashParams{
	flashIDMacronixMX25L3233F: {
		name: "Macronix MX25L3233F 32Mb",

		// [MX25L3233F|Table 10. AC Characteristics]
		// tPP: Page program cycle time
		tPP: time.Duration(4 * time.Millisecond),
		// tSE: Sector erase cycle time (4KB)
		tErase4KB: time.Duration(240 * time.Millisecond),
		// tBE: Block erase cycle time (64KB)
		tErase64KB: time.Duration(1000 * time.Millisecond),
		// tW: Write status register cycle time
		tWriteSR: time.Duration(40 * time.Millisecond),
	},

	flashIDGigaDeviceGD25Q80E: {
		name: "GigaDevice GD25Q80E 8Mb",

		// [GD25Q80E|9. AC Characteristics]
		// tPP: Page Program Time
		tPP: time.Duration(2400 * time.Microsecond),
		// tSE: Sector Erase Time (4KB)
		tErase4KB: time.Duration(300 * time.Millisecond),
		// tBE2: Block Erase Time (64KB)
		tErase64KB: time.Duration(1200 * time.Millisecond),
		// tW: Write Status Register Time
		tWriteSR: time.Duration(30 * time.Millisecond),
	},
}

func (f *Flash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if configured
	if f.pr != nil {
		return get(f.pr)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

// Datasheet cycle times of the identified part, falling back to the maximum
// across all known parts before Identify or for unknown IDs.

func (f *Flash) ProgramTime() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tPP })
}
func (f *Flash) SectorEraseTime() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tErase4KB })
}
func (f *Flash) BlockEraseTime() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tErase64KB })
}
func (f *Flash) StatusWriteTime() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tWriteSR })
}
