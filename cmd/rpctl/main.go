// rpctl is the operator CLI for the request packager.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/EOSC-Data-Commons/req-packager/internal/client"
)

var (
	serverURL  string
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "rpctl",
	Short:         "Operate a request packager",
	Long:          `rpctl browses datasets, assembles tool packages and inspects launch requests through a running request packager.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultServer := os.Getenv("RPCTL_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "request packager base URL (env RPCTL_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "timeout for non-streaming calls")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")

	rootCmd.AddCommand(browseCmd, assembleCmd, toolsCmd, requestsCmd)
}

func newClient() *client.Client {
	return client.New(client.Config{BaseURL: serverURL, Timeout: timeout})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
