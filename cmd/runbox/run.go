package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute a code snippet",
	Long: `Execute a code snippet with the matching language engine.

Code can be provided via:
  - File argument: runbox run script.py
  - Inline flag: runbox run -l python -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | runbox run -l python`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().Duration("timeout", 30*time.Second, "Execution timeout")
}

func runRun(cmd *cobra.Command, args []string) {
	setupLogging(cmd)

	inline, _ := cmd.Flags().GetString("code")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	langFlag, _ := cmd.Flags().GetString("lang")

	var source, filename string
	switch {
	case inline != "":
		source = inline
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	}

	language := detectLanguage(langFlag, filename)
	if language == "" {
		fmt.Fprintln(os.Stderr, "Error: language required: use --lang")
		os.Exit(1)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	eng, err := reg.Acquire(context.Background(), language)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := eng.Execute(ctx, source)
	fmt.Print(result.Output)
	if result.Err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.Err)
		os.Exit(1)
	}
}
