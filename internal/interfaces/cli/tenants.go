package cli

import (
	"github.com/spf13/cobra"
)

// NewTenantsCommand creates the tenants command group
func NewTenantsCommand(root *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Inspect tenants",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tenants and their connection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, root, func(rt *Runtime, p *Printer) error {
				tenants, err := rt.Tenants.List(cmd.Context())
				if err != nil {
					return err
				}

				if p.JSON() {
					views := make([]tenantJSON, 0, len(tenants))
					for _, t := range tenants {
						views = append(views, tenantJSON{
							ID:                  t.ID.String(),
							Name:                t.Name,
							CRMAccountID:        t.CRMAccountID,
							AccountingFileID:    t.AccountingFileID,
							CRMConnected:        t.CRM.Connected,
							AccountingConnected: t.Accounting.Connected,
						})
					}
					return p.Object(views)
				}

				if len(tenants) == 0 {
					p.Warning("No tenants found")
					return nil
				}
				for _, t := range tenants {
					if t.IsFullyConnected() {
						p.Success("%s  %s", t.ID, t.Name)
					} else {
						p.Failure("%s  %s", t.ID, t.Name)
					}
					p.Field("portal", t.CRMAccountID)
					p.Field("file", t.AccountingFileID)
					p.Field("hubspot", connectedLabel(t.CRM.Connected))
					p.Field("saasu", connectedLabel(t.Accounting.Connected))
				}
				return nil
			})
		},
	})

	return cmd
}

type tenantJSON struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	CRMAccountID        string `json:"crm_account_id"`
	AccountingFileID    string `json:"accounting_file_id"`
	CRMConnected        bool   `json:"crm_connected"`
	AccountingConnected bool   `json:"accounting_connected"`
}

func connectedLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}
