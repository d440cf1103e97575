package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/crewchat/crewseal/api"
	bboltdir "github.com/crewchat/crewseal/directory/bbolt"
	"github.com/crewchat/crewseal/internal/util"
	"github.com/crewchat/crewseal/keystore"
	"github.com/crewchat/crewseal/messaging"
)

var (
	port    int
	dataDir string
	tlsCert string
	tlsKey  string
	grace   time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the crew messaging encryption server",
	RunE: func(cmd *cobra.Command, args []string) error {
		applyEnvDefaults(cmd)

		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		dir, err := bboltdir.NewFromFile(dataDir+"/directory.db", nil)
		if err != nil {
			return fmt.Errorf("failed to open directory storage: %w", err)
		}
		defer dir.Close()

		keys := keystore.New(dir, keystore.WithGracePeriod(grace))
		members := messaging.NewDirectoryMembership(dir)
		verifier := messaging.NewTOTPVerifier()
		svc := messaging.New(keys, members,
			messaging.WithStepUp(verifier, sensitiveTypes()...))

		a := api.New(svc, members, api.WithStepUpVerifier(verifier))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		var tlsConfig *tls.Config
		if tlsCert != "" && tlsKey != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			cert, err := util.GenerateSelfSignedCert()
			if err != nil {
				return fmt.Errorf("failed to generate self-signed certificate: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
			fmt.Println("Using self-signed runtime generated certificate for TLS")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (data: %s)...\n", port, dataDir)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// applyEnvDefaults lets .env / environment values stand in for flags the
// operator did not set explicitly.
func applyEnvDefaults(cmd *cobra.Command) {
	if !cmd.Flags().Changed("port") {
		if p, err := strconv.Atoi(os.Getenv("CREWSEAL_PORT")); err == nil {
			port = p
		}
	}
	if !cmd.Flags().Changed("data-dir") {
		dataDir = envOr("CREWSEAL_DATA_DIR", dataDir)
	}
	if !cmd.Flags().Changed("tls-cert") {
		tlsCert = envOr("CREWSEAL_TLS_CERT", tlsCert)
	}
	if !cmd.Flags().Changed("tls-key") {
		tlsKey = envOr("CREWSEAL_TLS_KEY", tlsKey)
	}
	if !cmd.Flags().Changed("grace-period") {
		if d, err := time.ParseDuration(os.Getenv("CREWSEAL_GRACE_PERIOD")); err == nil {
			grace = d
		}
	}
}

func sensitiveTypes() []string {
	v := os.Getenv("CREWSEAL_SENSITIVE_TYPES")
	if v == "" {
		return []string{"confidential"}
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 8443, "Port to listen on")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	serverCmd.Flags().DurationVar(&grace, "grace-period", keystore.DefaultGracePeriod, "How long retired key versions stay decryptable")
}
