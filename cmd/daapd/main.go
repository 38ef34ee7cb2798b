// Command daapd runs the DAAP server: load config, build the logger and
// server, bind the listener, and serve until interrupted. The command
// structure follows the teacher pack's cobra usage (Zzhihon-Bt1QFM/cmd),
// generalized from a music-streaming HTTP app to this DAAP server.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"daap-server/internal/config"
	"daap-server/internal/logging"
	"daap-server/internal/server"
	"daap-server/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "daapd",
	Short: "daapd serves a music library over the Digital Audio Access Protocol",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DAAP server and block until interrupted",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json", "Path to the DAAP config JSON file")
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config %q: %w", configPath, err)
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
		Compress:   true,
	})
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	srv, err := server.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	srv.SetConfigPath(configPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("shutting down")
		srv.Stop()
	}()

	return srv.Run()
}
