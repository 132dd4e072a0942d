package integration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// relatedResolver finds or creates the counterpart of a record another record points at,
// such as a contact's company or an invoice's billing contact.
type relatedResolver struct {
	mappings integration.IdentityMapRepository
	logger   *zap.Logger
}

func newRelatedResolver(mappings integration.IdentityMapRepository, logger *zap.Logger) *relatedResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &relatedResolver{mappings: mappings, logger: logger}
}

// resolve returns the counterpart id of sourceID, calling create and recording
// the mapping when there is none yet.
func (r *relatedResolver) resolve(
	ctx context.Context,
	kind integration.EntityKind,
	source integration.System,
	sourceID string,
	create func(ctx context.Context) (string, error),
) (string, error) {
	mapping, err := integration.FindBySource(ctx, r.mappings, kind, source, sourceID)
	if err == nil {
		return mapping.IDIn(source.Other()), nil
	}
	if !errors.Is(err, integration.ErrMappingNotFound) {
		return "", err
	}

	destID, err := create(ctx)
	if err != nil {
		return "", err
	}
	linked, raced, err := linkMapping(ctx, r.mappings, kind, source, sourceID, destID)
	if err != nil {
		return "", err
	}
	if raced {
		r.logger.Warn("Related record was linked concurrently; adopting existing mapping",
			zap.String("kind", kind.String()),
			zap.String("source_id", sourceID),
			zap.String("orphaned_id", destID),
			zap.String("anomaly", integration.AnomalyDuplicateCreateRace),
		)
	}
	return linked, nil
}

// recreate replaces a related counterpart that no longer exists and repoints its mapping
func (r *relatedResolver) recreate(
	ctx context.Context,
	kind integration.EntityKind,
	source integration.System,
	sourceID string,
	create func(ctx context.Context) (string, error),
) (string, error) {
	mapping, err := integration.FindBySource(ctx, r.mappings, kind, source, sourceID)
	if err != nil {
		return "", err
	}

	newID, err := create(ctx)
	if err != nil {
		return "", err
	}
	if source.Other() == integration.SystemCRM {
		err = r.mappings.UpdateCRMID(ctx, mapping, newID)
	} else {
		err = r.mappings.UpdateAccountingID(ctx, mapping, newID)
	}
	if err != nil {
		return "", err
	}

	r.logger.Warn("Related record was stale and has been recreated",
		zap.String("kind", kind.String()),
		zap.String("source_id", sourceID),
		zap.String("new_id", newID),
	)
	return newID, nil
}
