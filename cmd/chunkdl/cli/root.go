// Package cli implements the chunkdl command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vertextoedge/chunkdl/internal/domain"
	"github.com/vertextoedge/chunkdl/internal/service/manager"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	configPath string
	verbose    bool

	app *App
}

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "chunkdl",
		Short: "Chunked, resumable downloads with progress reporting",
		Long: `chunkdl downloads remote resources in fixed-size chunks using HTTP range
requests. Interrupted downloads resume from the last checkpoint and servers
without range support fall back to a single streamed request.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip initialization for commands that don't need app context
			switch cmd.Name() {
			case "help", "version", "completion":
				return nil
			}

			app, err := NewApp(opts.configPath, opts.verbose)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			opts.app = app
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose debug logging")

	cmd.AddCommand(
		newGetCmd(opts),
		newPruneCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// closeApp releases the app. Subcommands defer it since cobra skips post-run
// hooks when RunE fails.
func (o *rootOptions) closeApp() {
	if o.app != nil {
		_ = o.app.Close()
		o.app = nil
	}
}

// Execute runs the root command.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// formatError converts engine errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	var (
		te *domain.TransportError
		ce *domain.CorruptResponseError
	)

	switch {
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return "Error: download cancelled"
	case errors.Is(err, domain.ErrSourceChanged):
		return "Error: remote file changed since the last attempt (delete the partial file to restart)"
	case errors.Is(err, manager.ErrShutdown):
		return "Error: shutting down"
	case domain.IsDuplicate(err):
		return fmt.Sprintf("Error: %v (use --coalesce to attach)", err)
	case errors.As(err, &te) && te.StatusCode != 0:
		return fmt.Sprintf("Error: server responded with status %d for %s", te.StatusCode, te.URL)
	case errors.As(err, &ce):
		return fmt.Sprintf("Error: corrupt response: %s", ce.Reason)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
