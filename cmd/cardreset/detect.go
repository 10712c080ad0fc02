package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gentam/cardreset"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Identify the inserted card without modifying it",
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
		fmt.Printf("Flash ID: %s", id)
		if name := b.flash.PartName(); name != "" {
			fmt.Printf("  (%s)", name)
		}
		fmt.Println()

		profiles, err := loadAllProfiles()
		if err != nil {
			return err
		}

		for _, p := range profiles {
			if err := p.Match(b.flash); err != nil {
				if cardreset.CodeOf(err) == cardreset.WrongCard {
					continue
				}
				return err
			}
			fmt.Printf("Profile:  %s\n", p.Name)
			return nil
		}
		fmt.Println("Profile:  no match")
		return nil
	},
}
