package integration

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// SynchronizerDeps holds the collaborators every synchronizer uses
type SynchronizerDeps struct {
	CRM        integration.CRMGateway
	Accounting integration.AccountingGateway
	Mappings   integration.IdentityMapRepository
	Options    SyncOptions
	Logger     *zap.Logger
}

func (d SynchronizerDeps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// NewSynchronizers builds one synchronizer per entity kind
func NewSynchronizers(deps SynchronizerDeps) map[integration.EntityKind]integration.Synchronizer {
	return map[integration.EntityKind]integration.Synchronizer{
		integration.EntityKindContact: NewContactSynchronizer(deps),
		integration.EntityKindCompany: NewCompanySynchronizer(deps),
		integration.EntityKindDeal:    NewDealSynchronizer(deps),
		integration.EntityKindItem:    NewItemSynchronizer(deps),
	}
}

// rejectDirection fails an outcome for a direction the kind does not support
func rejectDirection(f *reconcileFlow, session integration.TenantSession, direction integration.Direction, record integration.Record, err error) (integration.Outcome, error) {
	out := integration.NewOutcome(session.TenantID(), f.kind, direction, record.ID)
	return f.fail(&out, err)
}

// createCRMObject creates a CRM object and returns its id
func createCRMObject(ctx context.Context, crm integration.CRMGateway, session integration.TenantSession, objectType integration.CRMObjectType, props map[string]string) (string, error) {
	obj, err := crm.CreateObject(ctx, session, objectType, props)
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

// requireProperties rejects a CRM record the CRM returned without properties
func requireProperties(kind integration.EntityKind, obj *integration.CRMObject) error {
	if !obj.HasProperties() {
		id := ""
		if obj != nil {
			id = obj.ID
		}
		return &integration.MissingPrerequisiteError{Kind: kind, ID: id, Prerequisite: "properties"}
	}
	return nil
}
