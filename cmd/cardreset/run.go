package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/gpio"

	"github.com/gentam/cardreset"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Attend the card slot, resetting every supported card inserted",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoard(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		reg, err := newRegistry()
		if err != nil {
			return err
		}

		// Red steady on means powered and waiting.
		b.red.Out(gpio.High)
		b.green.Out(gpio.Low)

		// One card slot, one control loop: the session lives here and is
		// handed into every attempt, so a re-presented card can resume.
		var sess *cardreset.Session
		for {
			waitPresence(b, true)
			log.Info("card inserted")
			time.Sleep(cfg.SettleDelay.Std())

			b.green.Out(gpio.High)
			sess, err = reg.DetectAndRun(b.flash, sess)
			b.green.Out(gpio.Low)

			if err != nil {
				code := cardreset.CodeOf(err)
				log.Warn("operation failed",
					zap.Error(err),
					zap.Stringer("code", code))
				blinkUntilRemoved(b, code)
			} else {
				log.Info("operation complete")
				waitPresence(b, false)
			}
			log.Info("card removed")
		}
	},
}

func waitPresence(b *board, present bool) {
	for b.cardPresent() != present {
		time.Sleep(cfg.PollInterval.Std())
	}
}

const blinkTime = 250 * time.Millisecond

// blinkUntilRemoved encodes the result code as a blink count on the red
// LED, repeating until the card is taken out. Faults without a code get a
// long pattern that cannot be confused with a real one.
func blinkUntilRemoved(b *board, code cardreset.Code) {
	n := int(code)
	if n <= 0 {
		n = 9
	}
	for b.cardPresent() {
		for i := 0; i < n; i++ {
			b.red.Out(gpio.Low)
			time.Sleep(blinkTime)
			b.red.Out(gpio.High)
			time.Sleep(blinkTime)
		}
		time.Sleep(time.Second)
	}
}
