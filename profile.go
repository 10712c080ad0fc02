package cardreset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"
)

// Region is a fixed window of the flash array.
type Region struct {
	Addr int
	Len  int
}

// Strategy is the destructive operation a matched card profile runs. The
// session argument is owned by the caller: a strategy that supports
// resumption receives the previous session (nil for a fresh start) and
// returns the session to keep for the next attempt, nil once the work is
// complete or must restart from scratch.
type Strategy interface {
	Execute(d Device, sess *Session, log *zap.Logger) (*Session, error)
}

// CardProfile identifies one supported card type by the content of its flash
// and binds it to a strategy.
type CardProfile struct {
	Name string

	// IDRegion is hashed to fingerprint the card type. Serial and version
	// fields live outside it, so the fingerprint is stable across card
	// individuals of the same type.
	IDRegion    Region
	Fingerprint [sha256.Size]byte

	// FlashID, when set, must match the chip's JEDEC ID exactly. It is
	// checked only after the fingerprint matched: the fingerprint says
	// "this looks like card type X", the ID confirms the flash is the
	// expected part and not a substitute.
	FlashID *FlashID

	// ProtectMask holds the block-protect bits to lift before and restore
	// after the operation. Zero skips protect handling entirely; a nonzero
	// mask requires the device to implement ConfigDevice.
	ProtectMask byte

	Strategy Strategy
}

// Match reads the profile's ID region and compares its fingerprint. It
// deliberately does not check FlashID; the registry does that after a match.
func (p *CardProfile) Match(d Device) error {
	sum, err := ReadFingerprint(d, p.IDRegion)
	if err != nil {
		return err
	}
	if sum != p.Fingerprint {
		return errf(WrongCard, "detect %s", p.Name)
	}
	return nil
}

// ReadFingerprint hashes the given region of the flash array.
func ReadFingerprint(d Device, r Region) ([sha256.Size]byte, error) {
	b, err := d.ReadBytes(r.Addr, r.Len)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func mustFingerprint(s string) (sum [sha256.Size]byte) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != sha256.Size {
		panic(fmt.Sprintf("bad fingerprint %q", s))
	}
	copy(sum[:], b)
	return sum
}

// BuiltinProfiles returns the compiled-in card profiles in detection order.
// Cheaper checks go first; ordering does not affect correctness since the
// fingerprints are mutually exclusive.
func BuiltinProfiles() []*CardProfile {
	return []*CardProfile{
		{
			Name:        "dim",
			IDRegion:    Region{Addr: 0x10, Len: 0x22},
			Fingerprint: mustFingerprint("b2dcb5077c68d2d540de10459a0618232a2117d348ac10f2898fb15c61468482"),
			FlashID:     &flashIDMacronixMX25L3233F,
			ProtectMask: DefaultProtectMask,
			Strategy: &EraseStrategy{
				Unit:  BlockSize,
				Addrs: []int{0x10000, 0x90000, 0xA0000},
			},
		},
		{
			Name:        "tamasma",
			IDRegion:    Region{Addr: 0x10, Len: 0x22},
			Fingerprint: mustFingerprint("12efbb0ad793d7d0d216dadb301466a2c3d0b1b1777ccd9bfe4d29d2c77a7fba"),
			Strategy:    &HeaderResetStrategy{},
		},
		{
			Name:        "predata",
			IDRegion:    Region{Addr: 0x10, Len: 0x20},
			Fingerprint: mustFingerprint("da153a437d99e07891fcc77346d67a0cde9c75a14480283701c8e28b51a60b74"),
			FlashID:     &flashIDGigaDeviceGD25Q80E,
			Strategy: &EraseStrategy{
				Unit:     SectorSize,
				Addrs:    []int{0xFD000, 0xFE000, 0xFF000},
				ZeroFill: &Region{Addr: 0xFD000, Len: 0x3000},
			},
		},
	}
}
