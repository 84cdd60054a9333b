package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/control"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal the active run to stop",
	Long: `Drop a stop signal into .skein/signals.

A running skein in this project picks up the signal, cancels its
in-flight workers, records whatever finished, and exits with a
cancelled outcome.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		if err := control.RequestStop(cwd); err != nil {
			return fmt.Errorf("write stop signal: %w", err)
		}
		fmt.Println("Stop signal written. The active run will wind down.")
		return nil
	},
}
