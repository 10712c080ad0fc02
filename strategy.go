package cardreset

import (
	"crypto/md5"
	"fmt"

	"go.uber.org/zap"
)

// EraseStrategy wipes a fixed list of erase units. Each address is an
// independent step with no session or checksum gating: a failure simply
// reports which erase (or fill page) it happened on, and a retry redoes the
// whole list, which is harmless on already-erased units.
type EraseStrategy struct {
	Unit  int // BlockSize or SectorSize
	Addrs []int

	// ZeroFill, when set, is programmed with all-zero pages after the
	// erases. Cards that store lock state as non-0xFF content need their
	// wiped region forced to zeros rather than left erased.
	ZeroFill *Region
}

func (st *EraseStrategy) Execute(d Device, sess *Session, log *zap.Logger) (*Session, error) {
	for _, addr := range st.Addrs {
		log.Debug("erasing", zap.Int("addr", addr), zap.Int("unit", st.Unit))
		if err := eraseWait(d, st.Unit, addr); err != nil {
			return sess, err
		}
	}

	if st.ZeroFill != nil {
		zeros := make([]byte, PageSize)
		end := st.ZeroFill.Addr + st.ZeroFill.Len
		for addr := st.ZeroFill.Addr; addr < end; addr += PageSize {
			if err := programWait(d, addr, zeros); err != nil {
				return sess, err
			}
		}
	}

	log.Info("erase complete", zap.Int("units", len(st.Addrs)))
	return sess, nil
}

// Header geometry of cards that keep their lock state in the first sector:
// lock bytes inside a small header whose integrity digest sits right behind
// the region it covers.
const (
	headerLen       = 0x100 // one program page
	headerLockStart = 0x04
	headerLockEnd   = 0x10
	headerSumOver   = 0x40 // digest input is header[0:headerSumOver]
	headerSumEnd    = 0x50
)

// HeaderResetStrategy clears a card's lock bytes in place. The card family
// it serves keeps everything in the header sector at address zero, so there
// is no separate checksum page and no session: read the header, zero the
// locks, fix up the embedded digest, rewrite the sector, and zero-fill the
// rest of it.
type HeaderResetStrategy struct{}

func (st *HeaderResetStrategy) Execute(d Device, sess *Session, log *zap.Logger) (*Session, error) {
	header, err := d.ReadBytes(0x0, headerLen)
	if err != nil {
		return sess, err
	}

	for i := headerLockStart; i < headerLockEnd; i++ {
		header[i] = 0
	}

	// The embedded digest is MD5 over the header prefix, stored as a
	// little-endian 128-bit value (i.e. the digest bytes reversed).
	sum := md5.Sum(header[:headerSumOver])
	for i := 0; i < md5.Size; i++ {
		header[headerSumOver+i] = sum[md5.Size-1-i]
	}

	for i := headerSumEnd; i < headerLen; i++ {
		header[i] = 0
	}

	if err := eraseWait(d, SectorSize, 0x0); err != nil {
		return sess, err
	}
	if err := programWait(d, 0x0, header); err != nil {
		return sess, err
	}

	// Zero the remainder of the erase unit page by page.
	zeros := make([]byte, PageSize)
	for addr := headerLen; addr < SectorSize; addr += PageSize {
		if err := programWait(d, addr, zeros); err != nil {
			return sess, fmt.Errorf("zero fill: %w", err)
		}
	}

	log.Info("header reset complete")
	return sess, nil
}
