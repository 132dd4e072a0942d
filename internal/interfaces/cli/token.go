package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerlink/backend/internal/infrastructure/auth"
)

// ErrTokensDisabled is returned when no ops signing secret is configured
var ErrTokensDisabled = errors.New("ops tokens disabled: ops.jwt_secret is not set")

// NewTokenCommand creates the token command group
func NewTokenCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and revoke ops API bearer tokens",
	}
	cmd.AddCommand(newTokenIssueCommand(root))
	cmd.AddCommand(newTokenRevokeCommand(root))
	return cmd
}

func newTokenIssueCommand(root *RootOptions) *cobra.Command {
	var (
		operator string
		scopes   []string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for an operator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scopes {
				if s != auth.ScopeRead && s != auth.ScopePoll {
					return fmt.Errorf("unknown scope %q: must be %s or %s", s, auth.ScopeRead, auth.ScopePoll)
				}
			}

			return withRuntime(cmd, root, func(rt *Runtime, p *Printer) error {
				if rt.Tokens == nil {
					return ErrTokensDisabled
				}
				issued, err := rt.Tokens.Issue(operator, scopes, ttl)
				if err != nil {
					return err
				}

				if p.JSON() {
					return p.Object(issued)
				}
				p.Success("Issued token for %s", operator)
				p.Field("jti", issued.ID)
				p.Field("scopes", scopes)
				p.Field("expires", issued.ExpiresAt.Format(time.RFC3339))
				p.Line("%s", issued.Token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token (required)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeRead}, "granted scopes (read, poll)")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("operator")

	return cmd
}

func newTokenRevokeCommand(root *RootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "revoke <jti|token>",
		Short: "Revoke a token by id or by its signed value",
		Long: `Revokes a token until it would have expired. Given a signed token, its id and
remaining lifetime are read from the token itself; given a bare id, --ttl bounds the entry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, func(rt *Runtime, p *Printer) error {
				if rt.Revocations == nil {
					return ErrRevocationsUnavailable
				}

				jti, remaining, err := revocationTarget(rt, args[0], ttl)
				if err != nil {
					return err
				}
				if err := rt.Revocations.Revoke(cmd.Context(), jti, remaining); err != nil {
					return err
				}

				if p.JSON() {
					return p.Object(map[string]any{"jti": jti, "revoked_for": remaining.String()})
				}
				p.Success("Revoked token %s", jti)
				p.Field("for", remaining.Round(time.Second))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "how long a bare token id stays revoked")
	return cmd
}

// revocationTarget resolves the token id and how long to keep it revoked
func revocationTarget(rt *Runtime, arg string, ttl time.Duration) (string, time.Duration, error) {
	if _, err := uuid.Parse(arg); err == nil {
		if ttl <= 0 {
			return "", 0, fmt.Errorf("--ttl must be positive")
		}
		return arg, ttl, nil
	}

	if rt.Tokens == nil {
		return "", 0, ErrTokensDisabled
	}
	claims, err := rt.Tokens.Validate(arg)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return "", 0, fmt.Errorf("token already expired, nothing to revoke")
		}
		return "", 0, err
	}
	remaining := claims.RemainingTTL(rt.now())
	if remaining <= 0 {
		return "", 0, fmt.Errorf("token already expired, nothing to revoke")
	}
	return claims.ID, remaining, nil
}
