package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print flash chip identity, registers, and datasheet timings",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBoard(cfg)
		if err != nil {
			return err
		}
		defer b.Close()

		id, err := b.flash.Identify()
		if err != nil {
			return fmt.Errorf("read flash ID failed: %w", err)
		}
		fmt.Printf("Flash ID:      %s\n", id)
		if name := b.flash.PartName(); name != "" {
			fmt.Printf("Part:          %s\n", name)
		}

		sr, err := b.flash.ReadStatus()
		if err != nil {
			return fmt.Errorf("read status register failed: %w", err)
		}
		fmt.Printf("Status:        %s\n", sr)

		if cr, err := b.flash.ReadConfig(); err == nil {
			fmt.Printf("Config:        %08b\n", cr)
		}

		fmt.Printf("Page program:  %s\n", b.flash.ProgramTime())
		fmt.Printf("Sector erase:  %s\n", b.flash.SectorEraseTime())
		fmt.Printf("Block erase:   %s\n", b.flash.BlockEraseTime())
		fmt.Printf("Status write:  %s\n", b.flash.StatusWriteTime())
		return nil
	},
}
