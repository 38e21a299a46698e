// Command portalctl is a terminal client for the portal API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/bizportal/portal/internal/client"
)

type settings struct {
	BaseURL   string `envconfig:"PORTAL_URL" default:"http://localhost:8080"`
	TokenFile string `envconfig:"PORTAL_TOKEN_FILE"`
}

var (
	baseURL   string
	tokenFile string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "Work with the portal from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	var env settings
	_ = envconfig.Process("", &env)

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", env.BaseURL, "Portal base URL (or set PORTAL_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", env.TokenFile, "Token file (default: <config dir>/portal/tokens.json)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "Request timeout")

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, companiesCmd, pipelineCmd, contractsCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newClient builds an API client that persists tokens to disk.
func newClient() (*client.Client, error) {
	path := tokenFile
	if path == "" {
		p, err := client.DefaultTokenPath()
		if err != nil {
			return nil, fmt.Errorf("resolve token path: %w", err)
		}
		path = p
	}
	return client.New(baseURL, client.WithTokenStore(client.NewFileStore(path)), client.WithUserAgent("portalctl")), nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}
