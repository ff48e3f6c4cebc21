package main

import (
	"fmt"
	_ "net/http/pprof" // profiling endpoints, enabled only behind --enable-pprof
	"os"

	"github.com/cuemby/libcrun-shim/pkg/config"
	"github.com/cuemby/libcrun-shim/pkg/log"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "libcrun-shim",
	Short: "Host-side shim for running OCI containers inside a MicroVM",
	Long: `libcrun-shim runs OCI-style Linux containers from macOS by driving a
MicroVM over vsock and forwarding container operations to the in-guest
agent. On Linux it can also run containers directly against a local
containerd, without a VM in between.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"libcrun-shim version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("socket-path", "", "Unix socket path to the guest agent (overrides LIBCRUN_SOCKET_PATH)")
	rootCmd.PersistentFlags().Uint32("vsock-port", 0, "vsock port the guest agent listens on (overrides LIBCRUN_VSOCK_PORT)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(shutdownCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// runtimeConfig builds the effective RuntimeConfig: environment defaults,
// overridden by whichever persistent flags were actually set.
func runtimeConfig(cmd *cobra.Command) config.RuntimeConfig {
	cfg := config.FromEnv()

	if v, _ := cmd.Flags().GetString("socket-path"); v != "" {
		cfg.SocketPath = v
	}
	if v, _ := cmd.Flags().GetUint32("vsock-port"); v != 0 {
		cfg.VsockPort = v
	}
	return cfg
}
