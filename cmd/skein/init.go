package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a skein project",
	Long: `Set up a directory for use with skein:
  - Creates the .skein directory (workspaces, signals, run state)
  - Writes an example plan if none exists

The directory argument is optional and defaults to the current
directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
}

const examplePlan = `version: 1
name: example
tasks:
  - id: greet
    role: command
    title: Write a greeting
    command: echo "hello from skein" > greeting.txt

  - id: shout
    role: command
    title: Uppercase the greeting
    depends_on: [greet]
    command: tr a-z A-Z < ../greet/greeting.txt
`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	skeinDir := filepath.Join(absPath, ".skein")
	if _, err := os.Stat(skeinDir); err == nil && !initForce {
		fmt.Println("Directory already initialized. Use --force to reinitialize.")
		return nil
	}

	for _, dir := range []string{
		skeinDir,
		filepath.Join(skeinDir, "workspaces"),
		filepath.Join(skeinDir, "signals"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .skein directory", color.FgGreen)

	planPath := filepath.Join(absPath, "skein.yaml")
	if _, err := os.Stat(planPath); os.IsNotExist(err) {
		if err := os.WriteFile(planPath, []byte(examplePlan), 0644); err != nil {
			return fmt.Errorf("writing example plan: %w", err)
		}
		printStatus("✓", "Wrote example plan skein.yaml", color.FgGreen)
	}

	fmt.Println("\nReady. Try:")
	fmt.Println("  skein check skein.yaml")
	fmt.Println("  skein run skein.yaml")
	return nil
}

func printStatus(marker, message string, attr color.Attribute) {
	color.New(attr).Printf("%s ", marker)
	fmt.Println(message)
}
