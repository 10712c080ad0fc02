package cardreset

import (
	"go.uber.org/zap"
)

// Protector toggles the status register's block-protect bits around a
// destructive operation. It needs the combined status/config write, so it
// only works on parts exposing ConfigDevice.
type Protector struct {
	dev  ConfigDevice
	mask byte // block-protect bits to clear/set
	log  *zap.Logger
}

func NewProtector(d ConfigDevice, mask byte, log *zap.Logger) *Protector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Protector{dev: d, mask: mask, log: log}
}

// Lift clears the block-protect bits so the array becomes writable. A
// timeout here is fatal to the operation: the flash may still be protected.
func (p *Protector) Lift() error {
	return p.rewrite(func(sr byte) byte { return sr &^ p.mask })
}

// Restore sets the block-protect bits again. Callers should treat a failure
// as non-fatal: by the time protection is restored the data work is done,
// and the protect bits are a safety net rather than part of the result.
func (p *Protector) Restore() error {
	return p.rewrite(func(sr byte) byte { return sr | p.mask })
}

func (p *Protector) rewrite(mod func(byte) byte) error {
	sr, err := p.dev.ReadStatus()
	if err != nil {
		return err
	}
	cr, err := p.dev.ReadConfig()
	if err != nil {
		return err
	}

	// Only the masked bits change; everything else, the quad-enable bit in
	// particular, is written back verbatim.
	next := mod(byte(sr))
	p.log.Debug("rewriting status register",
		zap.String("from", sr.String()),
		zap.String("to", StatusRegister(next).String()))

	if err := p.dev.WriteEnable(); err != nil {
		return err
	}
	if err := p.dev.WriteStatusConfig(next, cr); err != nil {
		return err
	}
	return WaitIdle(p.dev, writeWaitTimeout)
}
