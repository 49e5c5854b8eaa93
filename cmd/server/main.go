// cmd/server/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/app"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/auth"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/config"
)

var (
	// Version is overridden with -ldflags at build time.
	Version = "0.1.0"
	// Build can be set via ldflags at compile time.
	Build = "dev"
)

var (
	envFile    string
	portFlag   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "manthan",
	Short:         "Manthan creator suite workflow service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API (default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{
				"version": Version,
				"build":   Build,
			})
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "manthan version %s (%s)\n", Version, Build)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <subject>",
	Short: "Mint a bearer token signed with AUTH_SECRET (local development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(envFile)
		if err != nil {
			return err
		}
		verifier, err := auth.NewVerifier(cfg.AuthSecret, cfg.AuthIssuer)
		if err != nil {
			return err
		}
		if !verifier.Required() {
			return fmt.Errorf("AUTH_SECRET is not set; the server runs in guest mode and needs no token")
		}
		name, _ := cmd.Flags().GetString("name")
		token, err := verifier.IssueToken(args[0], name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment from this file instead of ./.env")
	rootCmd.PersistentFlags().StringVar(&portFlag, "port", "", "listen port (overrides PORT)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
	tokenCmd.Flags().String("name", "", "display name claim")

	rootCmd.AddCommand(serveCmd, versionCmd, tokenCmd)
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}

	a, err := app.New(ctx, cfg, app.Options{Version: Version})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
