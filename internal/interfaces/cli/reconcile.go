package cli

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

type reconcileOptions struct {
	tenant    string
	direction string
}

// NewReconcileCommand creates the reconcile command
func NewReconcileCommand(root *RootOptions) *cobra.Command {
	opts := &reconcileOptions{}

	cmd := &cobra.Command{
		Use:   "reconcile <kind> <id>",
		Short: "Reconcile one record into the other system",
		Long: `Fetches record <id> of <kind> from its source system and creates or updates
its counterpart. --direction names the source: crm-to-accounting (the default) takes
a HubSpot id, accounting-to-crm takes a Saasu id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := integration.ParseEntityKind(args[0])
			if err != nil {
				return fmt.Errorf("%w: %q", err, args[0])
			}
			id := strings.TrimSpace(args[1])
			if id == "" {
				return fmt.Errorf("record id must not be empty")
			}
			tenantID, err := uuid.Parse(opts.tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant %q: %w", opts.tenant, err)
			}
			direction, err := integration.ParseDirection(opts.direction)
			if err != nil {
				return fmt.Errorf("%w: %q", err, opts.direction)
			}

			return withRuntime(cmd, root, func(rt *Runtime, p *Printer) error {
				outcome, err := rt.Reconciler.Reconcile(cmd.Context(), tenantID, kind, direction, integration.Record{ID: id})
				if p.JSON() {
					if encErr := p.Object(outcomeView(outcome, err)); encErr != nil {
						return encErr
					}
					return err
				}

				switch outcome.State {
				case integration.StateDone:
					p.Success("%s %s reconciled", kind, id)
				case integration.StateSkipped:
					p.Warning("%s %s skipped: %s", kind, id, outcome.Reason)
				default:
					p.Failure("%s %s failed: %v", kind, id, err)
				}
				p.Field("direction", direction)
				if outcome.DestinationID != "" {
					p.Field("counterpart", outcome.DestinationID)
				}
				p.Field("created", outcome.Created)
				p.Field("healed", outcome.Healed)
				if outcome.Anomaly != "" {
					p.Field("anomaly", outcome.Anomaly)
				}
				if outcome.ErrorClass != "" {
					p.Field("error_class", outcome.ErrorClass)
				}
				p.Field("trail", trailString(outcome.Trail))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "", "tenant id (required)")
	cmd.Flags().StringVar(&opts.direction, "direction", "crm-to-accounting", "crm-to-accounting or accounting-to-crm")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

type outcomeJSON struct {
	Kind          string   `json:"kind"`
	Direction     string   `json:"direction"`
	SourceID      string   `json:"source_id"`
	DestinationID string   `json:"destination_id,omitempty"`
	State         string   `json:"state"`
	Trail         []string `json:"trail"`
	Created       bool     `json:"created"`
	Healed        bool     `json:"healed"`
	Reason        string   `json:"reason,omitempty"`
	Anomaly       string   `json:"anomaly,omitempty"`
	ErrorClass    string   `json:"error_class,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func outcomeView(o integration.Outcome, err error) outcomeJSON {
	v := outcomeJSON{
		Kind:          o.Kind.String(),
		Direction:     o.Direction.String(),
		SourceID:      o.SourceID,
		DestinationID: o.DestinationID,
		State:         o.State.String(),
		Created:       o.Created,
		Healed:        o.Healed,
		Reason:        o.Reason,
		Anomaly:       o.Anomaly,
		ErrorClass:    o.ErrorClass,
	}
	for _, s := range o.Trail {
		v.Trail = append(v.Trail, s.String())
	}
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

func trailString(trail []integration.ReconcileState) string {
	parts := make([]string, len(trail))
	for i, s := range trail {
		parts[i] = s.String()
	}
	return strings.Join(parts, " > ")
}
