package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skein-dev/skein/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("skein version %s\n", version.Get())
	},
}
