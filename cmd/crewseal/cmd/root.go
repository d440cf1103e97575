package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is the build version, overridable at link time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "crewseal",
	Short: "CrewSeal is an end-to-end encryption service for crew messaging",
	Long: `An encryption core for confidential crew messaging: per-message content
keys wrapped for every recipient, versioned key rotation with grace periods,
and tamper-evident envelopes.`,
	Version: Version,
}

func Execute() {
	// .env values act as defaults; flags and real environment win.
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
