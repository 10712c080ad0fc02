package cardreset

import (
	"errors"
	"fmt"
)

// memFlash models a NOR flash array for executor and registry tests. It
// enforces the parts of the contract the real chip enforces: program and
// erase need an armed write-enable latch, and programming can only clear
// bits, so content written over unerased flash comes out wrong.
type memFlash struct {
	mem []byte
	id  FlashID
	sr  StatusRegister
	cr  byte

	// stuck pins WIP so WaitIdle can never succeed.
	stuck bool

	// failEraseAt/failProgramAt inject a one-shot failure after the unit at
	// that address has been modified, the way a completion timeout lands
	// after the command already took effect. -1 disables.
	failEraseAt   int
	failProgramAt int
	failErr       error

	ops []string // command log: "wren", "erase 0x030000", ...
}

func newMemFlash(size int) *memFlash {
	return &memFlash{
		mem:           make([]byte, size),
		failEraseAt:   -1,
		failProgramAt: -1,
	}
}

func (m *memFlash) Identify() (FlashID, error) { return m.id, nil }

func (m *memFlash) ReadStatus() (StatusRegister, error) {
	if m.stuck {
		return m.sr | srWIP, nil
	}
	return m.sr, nil
}

func (m *memFlash) WriteEnable() error {
	m.sr |= srWEL
	m.ops = append(m.ops, "wren")
	return nil
}

func (m *memFlash) ReadBytes(addr, n int) ([]byte, error) {
	if addr < 0 || addr+n > len(m.mem) {
		return nil, fmt.Errorf("read [0x%X,0x%X) out of bounds", addr, addr+n)
	}
	out := make([]byte, n)
	copy(out, m.mem[addr:])
	return out, nil
}

func (m *memFlash) ProgramPage(addr int, data []byte) error {
	if len(data) > PageSize {
		return errors.New("data exceeds page-program unit")
	}
	if m.sr&srWEL == 0 {
		return errors.New("program without write enable")
	}
	m.sr &^= srWEL
	m.ops = append(m.ops, fmt.Sprintf("program 0x%06X", addr))
	for i, b := range data {
		m.mem[addr+i] &= b // NOR program clears bits only
	}
	if addr == m.failProgramAt {
		m.failProgramAt = -1
		return m.failErr
	}
	return nil
}

func (m *memFlash) EraseSector(addr int) error { return m.erase(addr, SectorSize, "erase") }
func (m *memFlash) EraseBlock(addr int) error  { return m.erase(addr, BlockSize, "blockerase") }

func (m *memFlash) erase(addr, unit int, op string) error {
	if addr%unit != 0 {
		return fmt.Errorf("erase address 0x%X not %d-aligned", addr, unit)
	}
	if m.sr&srWEL == 0 {
		return errors.New("erase without write enable")
	}
	m.sr &^= srWEL
	m.ops = append(m.ops, fmt.Sprintf("%s 0x%06X", op, addr))
	for i := addr; i < addr+unit && i < len(m.mem); i++ {
		m.mem[i] = eraseFill
	}
	if addr == m.failEraseAt {
		m.failEraseAt = -1
		return m.failErr
	}
	return nil
}

// memConfigFlash adds the status/config write for protect-bit tests.
type memConfigFlash struct {
	*memFlash
}

func (m *memConfigFlash) ReadConfig() (byte, error) { return m.cr, nil }

func (m *memConfigFlash) WriteStatusConfig(sr, cr byte) error {
	if m.memFlash.sr&srWEL == 0 {
		return errors.New("status write without write enable")
	}
	// WIP/WEL are read-only; the latch clears when the write completes.
	m.memFlash.sr = StatusRegister(sr) &^ (srWIP | srWEL)
	m.cr = cr
	m.ops = append(m.ops, fmt.Sprintf("wrsr %02x %02x", sr, cr))
	return nil
}

// countOps returns how many logged commands start with prefix.
func (m *memFlash) countOps(prefix string) int {
	n := 0
	for _, op := range m.ops {
		if len(op) >= len(prefix) && op[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
