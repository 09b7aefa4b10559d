// Package commands implements the ftpkitd CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ftpkitd",
	Short: "ftpkitd - asynchronous FTP server",
	Long: `ftpkitd serves directories over FTP with virtual paths, per-path
permissions, layered bandwidth throttling and passive data-port pools.

Use "ftpkitd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: built-in defaults plus FTPKIT_* environment)")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
}
