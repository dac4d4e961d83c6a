package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "runbox [file]",
	Short: "Lazy multi-language code runner for interactive docs",
	Long: `runbox - Execute documentation code blocks across languages.

Engines are acquired on first use and cached: Python runs on an embedded
WebAssembly interpreter fetched from CDN mirrors, Tengo runs in-process, and
compiled languages go through hosted compiler services.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // default to run behavior
}

var configPath string

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./runbox.yaml)")
	rootCmd.PersistentFlags().StringP("lang", "l", "", "Language: python, tengo, go, ... (default: auto-detect)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	addRunFlags(rootCmd)
}

func setupLogging(cmd *cobra.Command) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// detectLanguage resolves the language from the flag or the file extension.
func detectLanguage(langFlag, filename string) string {
	if langFlag != "" {
		return langFlag
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".py":
		return "python"
	case ".tengo":
		return "tengo"
	case ".go":
		return "go"
	case ".c":
		return "c"
	case ".cc", ".cpp":
		return "cpp"
	case ".rs":
		return "rust"
	}
	return ""
}
