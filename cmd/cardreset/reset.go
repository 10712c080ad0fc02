package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/cardreset"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Run the matched card's operation once and exit",
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

		// One-shot: no session survives the process, so a timed-out patch
		// cannot be resumed from here. Use `run` for that.
		if _, err := reg.DetectAndRun(b.flash, nil); err != nil {
			return fmt.Errorf("%s (code %d)", err, cardreset.CodeOf(err))
		}
		fmt.Println("ok")
		return nil
	},
}
