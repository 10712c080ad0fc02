package cardreset

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Device is the base command set every supported flash part provides. One
// call issues exactly one chip-select framed command; completion of program
// and erase commands is observed separately via ReadStatus polling (WaitIdle).
type Device interface {
	Identify() (FlashID, error)
	ReadStatus() (StatusRegister, error)
	WriteEnable() error
	ReadBytes(addr, n int) ([]byte, error)
	ProgramPage(addr int, data []byte) error
	EraseBlock(addr int) error  // 64 KiB unit
	EraseSector(addr int) error // 4 KiB unit
}

// ConfigDevice extends Device with the status/config register write the
// Macronix parts support. Only strategies that toggle protect bits need it;
// the base command set has no status write at all.
type ConfigDevice interface {
	Device
	ReadConfig() (byte, error)
	WriteStatusConfig(sr, cr byte) error
}

// FlashID is the 3-byte JEDEC manufacturer/device identifier.
type FlashID [3]byte

func (id FlashID) String() string {
	return fmt.Sprintf("%02x %02x %02x", id[0], id[1], id[2])
}

// Flash drives a serial NOR flash chip over SPI with a GPIO chip select.
type Flash struct {
	conn spi.Conn
	cs   gpio.PinIO
	id   FlashID // JEDEC ID of the flash chip, set by Identify
	pr   *flashParams
}

func NewFlash(conn spi.Conn, cs gpio.PinIO) *Flash {
	return &Flash{conn: conn, cs: cs}
}

// Flash commands:
//   - [MX25L3233F|Table 4. Command Sets]
//   - [GD25Q80E|8. Commands Description]
const (
	flashCmdReadID             = 0x9F
	flashCmdRead               = 0x03
	flashCmdWriteEnable        = 0x06
	flashCmdPageProgram        = 0x02
	flashCmdErase4KB           = 0x20 // Sector Erase (4KB)
	flashCmdErase64KB          = 0xD8 // Block Erase (64KB)
	flashCmdReadStatusRegister = 0x05
	flashCmdReadConfigRegister = 0x15 // MX25L only
	flashCmdWriteStatusConfig  = 0x01 // MX25L only: SR and CR in one command
)

const (
	// PageSize is the page-program unit.
	PageSize = 256
	// SectorSize is the small erase unit (0x20).
	SectorSize = 4 << 10
	// BlockSize is the large erase unit (0xD8).
	BlockSize = 64 << 10

	// eraseFill is the value every byte of an erase unit holds after erase.
	eraseFill = 0xFF
)

// tx wraps a SPI transaction with CS assertion.
func (f *Flash) tx(buf []byte) (err error) {
	if err = f.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := f.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = f.conn.Tx(buf, buf)
	return
}

func put24(buf []byte, addr int) error {
	const max24 = 1<<24 - 1
	if addr < 0 || addr > max24 {
		return fmt.Errorf("address 0x%X out of 24-bit range", addr)
	}
	buf[0] = byte(addr >> 16)
	buf[1] = byte(addr >> 8)
	buf[2] = byte(addr)
	return nil
}

// Identify returns the JEDEC ID of the flash chip and configures its timing
// parameters when the part is known.
func (f *Flash) Identify() (FlashID, error) {
	buf := make([]byte, 4)
	buf[0] = flashCmdReadID

	if err := f.tx(buf); err != nil {
		return FlashID{}, err
	}

	f.id = FlashID(buf[1:])
	if params, ok := knownFlash[f.id]; ok {
		f.pr = &params
	}
	return f.id, nil
}

// PartName returns the datasheet name of the identified part, or "" before
// Identify or for unknown IDs.
func (f *Flash) PartName() string {
	if f.pr == nil {
		return ""
	}
	return f.pr.name
}

func (f *Flash) ReadStatus() (StatusRegister, error) {
	buf := []byte{flashCmdReadStatusRegister, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return StatusRegister(buf[1]), nil
}

func (f *Flash) WriteEnable() error {
	return f.tx([]byte{flashCmdWriteEnable})
}

// ReadBytes reads n bytes of the flash array starting at addr, splitting the
// operation into multiple transactions if needed to stay within the maximum
// transaction size.
func (f *Flash) ReadBytes(addr, n int) ([]byte, error) {
	const (
		maxTx    = 65536 // [FTDI-AN_108]
		cmdBytes = 4     // opcode + 24-bit address
		maxData  = maxTx - cmdBytes
	)

	out := make([]byte, n)
	off := 0
	for remaining := n; remaining > 0; {
		chunk := min(remaining, maxData)
		buf := make([]byte, cmdBytes+chunk)
		buf[0] = flashCmdRead
		if err := put24(buf[1:], addr); err != nil {
			return nil, err
		}

		if err := f.tx(buf); err != nil {
			return nil, err
		}

		copy(out[off:], buf[cmdBytes:])

		addr += chunk
		off += chunk
		remaining -= chunk
	}
	return out, nil
}

// ProgramPage issues a page program of data at addr. The data must fit one
// page-program unit and not wrap a page boundary; that is the caller's
// responsibility, as is a prior WriteEnable and a subsequent WaitIdle.
func (f *Flash) ProgramPage(addr int, data []byte) error {
	if len(data) > PageSize {
		return errors.New("data must not exceed one page-program unit")
	}
	buf := make([]byte, 4+len(data))
	buf[0] = flashCmdPageProgram
	if err := put24(buf[1:], addr); err != nil {
		return err
	}
	copy(buf[4:], data)
	return f.tx(buf)
}

// EraseSector issues a 4KB sector erase. Caller handles WriteEnable/WaitIdle.
func (f *Flash) EraseSector(addr int) error {
	return f.erase(flashCmdErase4KB, addr)
}

// EraseBlock issues a 64KB block erase. Caller handles WriteEnable/WaitIdle.
func (f *Flash) EraseBlock(addr int) error {
	return f.erase(flashCmdErase64KB, addr)
}

func (f *Flash) erase(cmd byte, addr int) error {
	buf := make([]byte, 4)
	buf[0] = cmd
	if err := put24(buf[1:], addr); err != nil {
		return err
	}
	return f.tx(buf)
}

// MX25L drives Macronix MX25L-series parts, adding the configuration
// register commands the base command set lacks.
type MX25L struct {
	*Flash
}

func NewMX25L(conn spi.Conn, cs gpio.PinIO) *MX25L {
	return &MX25L{Flash: NewFlash(conn, cs)}
}

func (f *MX25L) ReadConfig() (byte, error) {
	buf := []byte{flashCmdReadConfigRegister, 0}
	if err := f.tx(buf); err != nil {
		return 0, err
	}
	return buf[1], nil
}

// WriteStatusConfig writes the status and configuration registers in a
// single combined command. Caller handles WriteEnable/WaitIdle.
func (f *MX25L) WriteStatusConfig(sr, cr byte) error {
	return f.tx([]byte{flashCmdWriteStatusConfig, sr, cr})
}

// writeWaitTimeout bounds completion polling after any write, erase, or
// program command. Block erase takes up to ~1s per datasheet; the rest is
// margin.
const writeWaitTimeout = 1200 * time.Millisecond

// WaitIdle polls the status register until both WIP and WEL are clear or the
// timeout expires. The bus never signals completion on its own; polling is
// the only way to observe it.
func WaitIdle(d Device, timeout time.Duration) error {
	// Fast path
	if sr, err := d.ReadStatus(); err == nil && sr.Idle() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(500 * time.Microsecond)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return errf(Timeout, "wait for write completion (%v)", timeout)
		case <-ticker.C:
			sr, err := d.ReadStatus()
			if err != nil {
				return err
			}
			if sr.Idle() {
				return nil
			}
		}
	}
}

// StatusRegister represents the status register of the flash chip.
//
//	Bits| [MX25L3233F|Table 2. Status Register] | [GD25Q80E|7.1 Status Register]
//	----+---------------------------------------+-------------------------------
//	7   | SRWD: Status register write disable   | (same)
//	6   | QE: Quad Enable                       | BP4: Block Protect bit 4
//	5:2 | BP3-0: Block Protect bit 3-0          | (same)
//	1   | WEL: Write Enable Latch               | (same)
//	0   | WIP: Write In Progress                | WIP/BUSY
type StatusRegister byte

const (
	srWIP = StatusRegister(1 << 0)
	srWEL = StatusRegister(1 << 1)

	// QuadEnable must survive any status register rewrite verbatim; clearing
	// it by accident drops the card out of quad I/O mode.
	QuadEnable byte = 1 << 6

	// DefaultProtectMask covers BP0-BP3.
	DefaultProtectMask byte = 0x3C
)

func (sr StatusRegister) StatusRegisterWriteDisable() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) QuadEnabled() bool                { return byte(sr)&QuadEnable != 0 }
func (sr StatusRegister) BlockProtect3() bool              { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool              { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool              { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool              { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool               { return sr&srWEL != 0 }
func (sr StatusRegister) Busy() bool                       { return sr&srWIP != 0 }

// Idle reports whether both WIP and WEL are clear, i.e. the previous write,
// erase, or program command has fully completed and no further write is armed.
func (sr StatusRegister) Idle() bool { return sr&(srWIP|srWEL) == 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.StatusRegisterWriteDisable() {
		s = append(s, "SRWD")
	}
	if sr.QuadEnabled() {
		s = append(s, "QE")
	}
	if sr.BlockProtect3() {
		s = append(s, "BP3")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "WIP")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
