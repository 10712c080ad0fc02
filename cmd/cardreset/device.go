package main

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/gentam/cardreset"
)

// board bundles the opened hardware: the flash bus plus the card-presence
// and indicator pins the attended loop uses.
type board struct {
	flash  *cardreset.MX25L
	detect gpio.PinIO
	green  gpio.PinIO
	red    gpio.PinIO

	port spi.PortCloser
}

func openBoard(cfg cardreset.Config) (*board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host initialization failed: %w", err)
	}

	port, err := spireg.Open(cfg.SPI.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q: %w", cfg.SPI.Port, err)
	}

	conn, err := port.Connect(physic.Frequency(cfg.SPI.Hertz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect SPI: %w", err)
	}

	cs, err := pinByName(cfg.SPI.CSPin)
	if err != nil {
		port.Close()
		return nil, err
	}
	if err := cs.Out(gpio.High); err != nil { // CS idles high
		port.Close()
		return nil, err
	}

	b := &board{
		flash: cardreset.NewMX25L(conn, cs),
		port:  port,
	}

	if b.detect, err = pinByName(cfg.Pins.CardDetect); err != nil {
		port.Close()
		return nil, err
	}
	if err := b.detect.In(gpio.PullUp, gpio.NoEdge); err != nil {
		port.Close()
		return nil, fmt.Errorf("configure card detect: %w", err)
	}

	if b.green, err = pinByName(cfg.Pins.LEDGreen); err != nil {
		port.Close()
		return nil, err
	}
	if b.red, err = pinByName(cfg.Pins.LEDRed); err != nil {
		port.Close()
		return nil, err
	}

	return b, nil
}

func (b *board) Close() error { return b.port.Close() }

// cardPresent reports the debounced slot state: the detect pin reads low
// while a card is seated.
func (b *board) cardPresent() bool { return b.detect.Read() == gpio.Low }

func pinByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no pin named %q", name)
	}
	return p, nil
}
