// Command lattice runs the Lattice document store: a JSON document service
// with schema deduplication, constraint validation, dynamic key indexes, and
// an expression search language over an embedded or server SQL backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "Lattice JSON document store",
	Long:          "Lattice stores JSON documents with automatic schema extraction,\nconstraint validation, per-key index tables, and an expression search API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (yaml)")
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
