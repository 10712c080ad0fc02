package cardreset

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Session is the resumable record of an in-progress patch, bound to one
// physical card. The top-level control loop owns it: it passes the previous
// session into the next attempt and keeps whatever comes back. A nil session
// means there is nothing to resume.
type Session struct {
	owner   Strategy // strategy instance that created the session
	cardID  []byte   // serial field read from the card
	patch   *PatchSet
	sectors []*Sector
	next    int // index of the first unprocessed sector
}

// BoundTo reports whether the session was created by the given strategy.
func (s *Session) BoundTo(st Strategy) bool { return s.owner == st }

// Remaining returns the number of sectors not yet committed.
func (s *Session) Remaining() int { return len(s.sectors) - s.next }

func (s *Session) String() string {
	return fmt.Sprintf("session(card %s, sector %d/%d)",
		hex.EncodeToString(s.cardID), s.next, len(s.sectors))
}

// PatchStrategy applies a byte-level patch through the resumable session
// state machine: verify, erase+program each planned sector, then rewrite the
// checksum page.
type PatchStrategy struct {
	// SerialRegion holds the card's serial/version field. It sub-identifies
	// the patch variant and binds an open session to one physical card.
	SerialRegion Region

	// Variants maps the lowercase hex serial field to the patch for that
	// card variant.
	Variants map[string]*PatchSet
}

// Validate checks every variant's patch set. Run at registry construction so
// authoring mistakes surface at startup, not mid-erase.
func (st *PatchStrategy) Validate() error {
	if st.SerialRegion.Len == 0 {
		return fmt.Errorf("patch strategy has no serial region")
	}
	for k, ps := range st.Variants {
		if err := ps.Validate(); err != nil {
			return fmt.Errorf("variant %s: %w", k, err)
		}
	}
	return nil
}

func (st *PatchStrategy) Execute(d Device, sess *Session, log *zap.Logger) (*Session, error) {
	// Verifying: binding and checksum gates run on every entry, resumes
	// included. No erase or program command may be issued before they pass.
	serial, err := d.ReadBytes(st.SerialRegion.Addr, st.SerialRegion.Len)
	if err != nil {
		return sess, err
	}
	if sess != nil && (!sess.BoundTo(st) || !bytes.Equal(sess.cardID, serial)) {
		// The open session belongs to another strategy or another physical
		// card. Discard it; re-presenting the original card restarts from
		// sector 0.
		return nil, errf(DifferentCard, "card %s has an open session", hex.EncodeToString(sess.cardID))
	}

	// A resumed session carries its own patch set; the variant table is only
	// consulted for a fresh start.
	var ps *PatchSet
	if sess != nil {
		ps = sess.patch
	} else {
		var ok bool
		if ps, ok = st.Variants[hex.EncodeToString(serial)]; !ok {
			return sess, errf(NoPatchesForCard, "card variant %s", hex.EncodeToString(serial))
		}
	}

	// While data sectors remain, the on-flash checksum must still equal the
	// patch's expected value; anything else means the content diverged from
	// what the plan was derived from, and resuming would corrupt the card.
	// Once every data sector is committed the checksum area is legitimately
	// in flux (finalization erases it), so the gate no longer applies.
	if sess == nil || sess.next < len(sess.sectors) {
		got, err := readChecksum(d, ps.ChecksumAddr)
		if err != nil {
			return sess, err
		}
		if got != ps.OrigChecksum {
			return nil, errf(ChecksumMismatch, "checksum %#04x, want %#04x", got, ps.OrigChecksum)
		}
	}

	if sess == nil {
		sectors, err := PlanSectors(ps)
		if err != nil {
			return nil, err
		}
		sess = &Session{owner: st, cardID: serial, patch: ps, sectors: sectors}
		log.Info("patch session created",
			zap.String("card", hex.EncodeToString(serial)),
			zap.Int("sectors", len(sectors)))
	} else {
		log.Info("resuming patch session", zap.Stringer("session", sess))
	}

	// Executing: erase and reprogram each remaining sector. The patched
	// buffer is materialized before the erase and kept on the session, so a
	// timeout at any point leaves a resume path that never depends on
	// re-reading half-erased flash.
	for ; sess.next < len(sess.sectors); sess.next++ {
		sec := sess.sectors[sess.next]
		if err := sec.materialize(d); err != nil {
			return sess, err
		}
		if err := eraseWait(d, SectorSize, sec.Base); err != nil {
			return sess, err
		}
		for off := 0; off < SectorSize; off += PageSize {
			if err := programWait(d, sec.Base+off, sec.buf[off:off+PageSize]); err != nil {
				return sess, err
			}
		}
		log.Debug("sector committed", zap.Int("base", sec.Base))
	}

	// Finalizing: erase the checksum sector and program the new checksum,
	// padding the rest of its page with the erased value.
	if err := eraseWait(d, SectorSize, ps.ChecksumAddr&^(SectorSize-1)); err != nil {
		return sess, err
	}
	page := bytes.Repeat([]byte{eraseFill}, PageSize)
	binary.LittleEndian.PutUint16(page[ps.ChecksumAddr&(PageSize-1):], ps.NewChecksum)
	if err := programWait(d, ps.ChecksumAddr&^(PageSize-1), page); err != nil {
		return sess, err
	}

	log.Info("patch applied", zap.String("card", hex.EncodeToString(serial)))
	return nil, nil
}

func readChecksum(d Device, addr int) (uint16, error) {
	b, err := d.ReadBytes(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// eraseWait arms, erases one unit (SectorSize or BlockSize), and polls for
// completion.
func eraseWait(d Device, unit, addr int) error {
	if err := d.WriteEnable(); err != nil {
		return err
	}
	var err error
	if unit == BlockSize {
		err = d.EraseBlock(addr)
	} else {
		err = d.EraseSector(addr)
	}
	if err != nil {
		return err
	}
	if err := WaitIdle(d, writeWaitTimeout); err != nil {
		return fmt.Errorf("erase 0x%06X: %w", addr, err)
	}
	return nil
}

// programWait arms, programs one page, and polls for completion.
func programWait(d Device, addr int, data []byte) error {
	if err := d.WriteEnable(); err != nil {
		return err
	}
	if err := d.ProgramPage(addr, data); err != nil {
		return err
	}
	if err := WaitIdle(d, writeWaitTimeout); err != nil {
		return fmt.Errorf("program 0x%06X: %w", addr, err)
	}
	return nil
}
