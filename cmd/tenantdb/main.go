package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tenantdb",
	Short: "Multi-tenant database resource router",
	Long: "tenantdb provisions a connection pool and persistence context per tenant, " +
		"routes each request to the tenant it names and exposes an admin API to change tenants at runtime.",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tenantdb %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newReloadCmd(),
		newCheckCmd(),
		versionCmd,
	)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
