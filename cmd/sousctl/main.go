// Command sousctl drives a running Sous voice service: it uploads, deletes
// and parses recipes, streams a WAV file into a voice session, checks gRPC
// health and follows the events the service publishes to Kafka.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "sousctl",
	Short: "sousctl - command line client for the Sous voice service",
	Long: `sousctl talks to a running Sous voice service.

It manages the recipe chunks used for retrieval, scrapes recipe pages and
streams recorded audio into a live voice session.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SOUS_SERVER", "http://localhost:8000"), "Base URL of the service")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
