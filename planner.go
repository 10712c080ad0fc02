package cardreset

import "fmt"

// ByteEdit replaces len(Data) bytes at offset Off within its page.
type ByteEdit struct {
	Off  int
	Data []byte
}

// Page is a page-program-unit aligned address plus the edits to apply inside
// it. Edits must be offset-ordered, non-overlapping, and fit the unit.
type Page struct {
	Addr  int
	Edits []ByteEdit
}

// PatchSet describes one card variant's byte-level patch: the 2-byte checksum
// (little-endian, at a fixed flash address) expected before the operation,
// the checksum written after success, and the page edits in ascending address
// order.
type PatchSet struct {
	OrigChecksum uint16
	NewChecksum  uint16
	ChecksumAddr int
	Pages        []Page
}

// Validate checks the preconditions PlanSectors relies on. Out-of-order or
// overlapping input is a profile authoring bug, and mis-bucketing it silently
// would patch the wrong bytes, so it is rejected up front.
func (ps *PatchSet) Validate() error {
	if len(ps.Pages) == 0 {
		return fmt.Errorf("patch set has no pages")
	}
	if ps.ChecksumAddr < 0 {
		return fmt.Errorf("checksum address %#X is negative", ps.ChecksumAddr)
	}
	// The 2-byte checksum is programmed as part of a single page, so it must
	// not straddle a program-unit boundary.
	if ps.ChecksumAddr&(PageSize-1) > PageSize-2 {
		return fmt.Errorf("checksum at 0x%06X straddles the program unit", ps.ChecksumAddr)
	}
	sumSector := ps.ChecksumAddr &^ (SectorSize - 1)
	prevAddr := -1
	for _, pg := range ps.Pages {
		if pg.Addr&^(SectorSize-1) == sumSector {
			// Finalization erases the checksum sector after all data sectors
			// are committed; a patch page in the same erase unit would be
			// wiped right back.
			return fmt.Errorf("page 0x%06X shares the checksum's erase unit", pg.Addr)
		}
		if pg.Addr%PageSize != 0 {
			return fmt.Errorf("page 0x%06X not aligned to the %d-byte program unit", pg.Addr, PageSize)
		}
		if pg.Addr <= prevAddr {
			return fmt.Errorf("page 0x%06X out of ascending address order", pg.Addr)
		}
		prevAddr = pg.Addr

		end := -1
		for _, e := range pg.Edits {
			if len(e.Data) == 0 {
				return fmt.Errorf("page 0x%06X: empty edit at offset 0x%X", pg.Addr, e.Off)
			}
			if e.Off < end {
				return fmt.Errorf("page 0x%06X: edit at offset 0x%X overlaps or is out of order", pg.Addr, e.Off)
			}
			end = e.Off + len(e.Data)
			if e.Off < 0 || end > PageSize {
				return fmt.Errorf("page 0x%06X: edit [0x%X,0x%X) exceeds the program unit", pg.Addr, e.Off, end)
			}
		}
	}
	return nil
}

// Sector is an erase-unit aligned region holding the subset of a PatchSet's
// pages that fall inside it. Its content buffer is materialized lazily by the
// executor: read once from flash, patched in memory, and retained so a
// resumed attempt reprograms from the patched copy instead of re-reading
// partially-erased flash.
type Sector struct {
	Base  int
	Pages []Page

	buf []byte
}

// PlanSectors buckets a PatchSet's pages into the minimal ordered list of
// erase sectors. A page joins the current sector while it lies inside the
// sector's aligned range and opens a new one otherwise, so the result has
// strictly increasing, erase-unit aligned bases partitioning the input pages.
func PlanSectors(ps *PatchSet) ([]*Sector, error) {
	if err := ps.Validate(); err != nil {
		return nil, err
	}

	var sectors []*Sector
	for _, pg := range ps.Pages {
		base := pg.Addr &^ (SectorSize - 1)
		if n := len(sectors); n > 0 && sectors[n-1].Base == base {
			sectors[n-1].Pages = append(sectors[n-1].Pages, pg)
			continue
		}
		sectors = append(sectors, &Sector{Base: base, Pages: []Page{pg}})
	}
	return sectors, nil
}

// materialize reads the sector's erase-unit region and applies all page edits
// to the in-memory copy. A second call is a no-op: the patched buffer is the
// source of truth for any (re-)program of this sector.
func (s *Sector) materialize(d Device) error {
	if s.buf != nil {
		return nil
	}
	buf, err := d.ReadBytes(s.Base, SectorSize)
	if err != nil {
		return err
	}
	for _, pg := range s.Pages {
		off := pg.Addr - s.Base
		for _, e := range pg.Edits {
			copy(buf[off+e.Off:], e.Data)
		}
	}
	s.buf = buf
	return nil
}
