// Package cli implements syncctl, the operator command line for manual polls,
// single record reconciliation, tenant listing and ops token management.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Output formats
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON}

// RuntimeFactory builds the collaborators a command needs
type RuntimeFactory func(ctx context.Context, opts *RootOptions) (*Runtime, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format   string
	LogLevel string
	NoColor  bool

	// NewRuntime defaults to Bootstrap
	NewRuntime RuntimeFactory
}

// NewRootCommand creates the root syncctl command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.NewRuntime == nil {
		opts.NewRuntime = Bootstrap
	}

	cmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the ledgerlink HubSpot and Saasu reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", FormatText, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewPollCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewTenantsCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// withRuntime builds the runtime, runs fn and releases it
func withRuntime(cmd *cobra.Command, opts *RootOptions, fn func(rt *Runtime, p *Printer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := opts.NewRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(rt, NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts))
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
