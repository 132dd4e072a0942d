package integration

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CRM webhook subscription actions
const (
	WebhookActionCreation          = "creation"
	WebhookActionPropertyChange    = "propertyChange"
	WebhookActionAssociationChange = "associationChange"
	WebhookActionDeletion          = "deletion"
)

// Webhook kind prefixes of the subscription type
const (
	WebhookKindContact  = "contact"
	WebhookKindCompany  = "company"
	WebhookKindDeal     = "deal"
	WebhookKindLineItem = "line_item"
)

// WebhookEvent is one notification in a CRM webhook batch.
type WebhookEvent struct {
	EventID            int64  `json:"eventId"`
	SubscriptionID     int64  `json:"subscriptionId"`
	PortalID           int64  `json:"portalId" validate:"required"`
	AppID              int64  `json:"appId"`
	OccurredAt         int64  `json:"occurredAt"`
	SubscriptionType   string `json:"subscriptionType" validate:"required,contains=."`
	AttemptNumber      int    `json:"attemptNumber"`
	ObjectID           int64  `json:"objectId"`
	FromObjectID       *int64 `json:"fromObjectId,omitempty"`
	ToObjectID         *int64 `json:"toObjectId,omitempty"`
	AssociationType    string `json:"associationType,omitempty"`
	AssociationRemoved bool   `json:"associationRemoved,omitempty"`
	PropertyName       string `json:"propertyName,omitempty"`
	PropertyValue      string `json:"propertyValue,omitempty"`
	ChangeSource       string `json:"changeSource,omitempty"`
}

// KindPrefix returns the part of the subscription type before the first dot
func (e WebhookEvent) KindPrefix() string {
	prefix, _, _ := strings.Cut(e.SubscriptionType, ".")
	return prefix
}

// Action returns the part of the subscription type after the first dot
func (e WebhookEvent) Action() string {
	_, action, _ := strings.Cut(e.SubscriptionType, ".")
	return action
}

// IsDeletion reports a *.deletion event
func (e WebhookEvent) IsDeletion() bool {
	return e.Action() == WebhookActionDeletion
}

// IsAssociationRemoval reports an association change that removed a link
func (e WebhookEvent) IsAssociationRemoval() bool {
	return e.AssociationRemoved
}

// TargetObjectID is the id of the record the event is about.
// Association events name it in fromObjectId.
func (e WebhookEvent) TargetObjectID() string {
	if e.FromObjectID != nil {
		return strconv.FormatInt(*e.FromObjectID, 10)
	}
	return strconv.FormatInt(e.ObjectID, 10)
}

// AccountID returns the portal id as the tenant lookup key
func (e WebhookEvent) AccountID() string {
	return strconv.FormatInt(e.PortalID, 10)
}

// DedupKey identifies a delivery for de-duplication across retries
func (e WebhookEvent) DedupKey() string {
	if e.EventID != 0 {
		return e.AccountID() + ":" + strconv.FormatInt(e.EventID, 10)
	}
	return e.AccountID() + ":" + e.SubscriptionType + ":" + e.TargetObjectID() + ":" + strconv.FormatInt(e.OccurredAt, 10)
}

// EventDeduplicator remembers delivered webhook events for a while.
// MarkProcessed returns false when key was already marked.
// Forget releases a key whose event could not be handed off.
type EventDeduplicator interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}
