// Command excelslim shrinks Excel workbooks by running a configurable
// sequence of slimming stages (clean, image, precision).
//
// Usage:
//
//	excelslim [--config FILE] [--log-level LEVEL] <command> [flags]
//
// Commands:
//
//	run      Slim one workbook and print the run log
//	serve    Serve the run API, metrics and MCP over HTTP
//	mcp      Serve the MCP tools on stdio
//	doctor   Check that the stage tools are installed
//	version  Print the version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set by the linker at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "excelslim",
		Short:         "Shrink Excel workbooks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "tool configuration file (default: ./excelslim.yml when present)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	rootCmd.AddCommand(
		newRunCmd(g),
		newServeCmd(g),
		newMCPCmd(g),
		newDoctorCmd(g),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
