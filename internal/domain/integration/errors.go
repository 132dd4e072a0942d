package integration

import (
	"errors"
	"fmt"
)

// Sentinel errors for the reconciliation context
var (
	ErrInvalidEntityKind     = errors.New("integration: invalid entity kind")
	ErrInvalidDirection      = errors.New("integration: invalid direction")
	ErrInvalidSystem         = errors.New("integration: invalid system")
	ErrUnsupportedDirection  = errors.New("integration: direction not supported for entity kind")
	ErrMappingInvalidID      = errors.New("integration: mapping requires both remote ids")
	ErrMappingNotFound       = errors.New("integration: identity mapping not found")
	ErrDuplicateMapping      = errors.New("integration: identity mapping already exists")
	ErrTenantNotFound        = errors.New("integration: tenant not found")
	ErrTenantInvalidAccount  = errors.New("integration: tenant requires a CRM account id")
	ErrInvalidSignature      = errors.New("integration: invalid webhook signature")
	ErrInvalidWebhookPayload = errors.New("integration: invalid webhook payload")
	ErrRemoteInvalidResponse = errors.New("integration: invalid remote response")
)

// ---------------------------------------------------------------------------
// RemoteError
// ---------------------------------------------------------------------------

// RemoteError is a non-success response from a remote system.
// Gateways wrap it in one of the typed errors below before returning it.
type RemoteError struct {
	System  System
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("integration: %s responded %d: %s", e.System, e.Status, e.Message)
}

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------

// TransientRemoteError covers network failures, timeouts, rate limits and 5xx responses.
// It is the only class the outer queue retries.
type TransientRemoteError struct {
	System System
	Err    error
}

func (e *TransientRemoteError) Error() string {
	return fmt.Sprintf("integration: transient %s failure: %v", e.System, e.Err)
}

func (e *TransientRemoteError) Unwrap() error { return e.Err }

// NotFoundError means a remote id no longer resolves on its system.
// On an update path it triggers the self-heal create.
type NotFoundError struct {
	System System
	Kind   EntityKind
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("integration: %s %s %q not found", e.System, e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// DuplicateKeyError means the destination rejected a create because a unique key
// (an item code, a contact email) is already taken.
type DuplicateKeyError struct {
	System System
	Kind   EntityKind
	Key    string
	Err    error
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("integration: %s %s with key %q already exists", e.System, e.Kind, e.Key)
}

func (e *DuplicateKeyError) Unwrap() error { return e.Err }

// MissingPrerequisiteError aborts a reconciliation that cannot proceed without data
// the remote systems did not provide (an associated contact, line items, a revision marker).
type MissingPrerequisiteError struct {
	Kind         EntityKind
	ID           string
	Prerequisite string
}

func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("integration: %s %q is missing %s", e.Kind, e.ID, e.Prerequisite)
}

// TenantNotConnectedError drops a unit because the tenant lost (or never had) a connection.
type TenantNotConnectedError struct {
	TenantID string
	System   System
	Err      error
}

func (e *TenantNotConnectedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integration: tenant %s not connected to %s: %v", e.TenantID, e.System, e.Err)
	}
	return fmt.Sprintf("integration: tenant %s not connected to %s", e.TenantID, e.System)
}

func (e *TenantNotConnectedError) Unwrap() error { return e.Err }

// IsRetryable reports whether the outer queue should try the unit again.
func IsRetryable(err error) bool {
	var transient *TransientRemoteError
	return errors.As(err, &transient)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsDuplicateKey reports whether err is (or wraps) a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var dup *DuplicateKeyError
	return errors.As(err, &dup)
}

// IsTenantNotConnected reports whether err is (or wraps) a TenantNotConnectedError.
func IsTenantNotConnected(err error) bool {
	var tnc *TenantNotConnectedError
	return errors.As(err, &tnc)
}

// ErrorClass names the taxonomy bucket of err for logs and metrics.
func ErrorClass(err error) string {
	var (
		transient *TransientRemoteError
		nf        *NotFoundError
		dup       *DuplicateKeyError
		missing   *MissingPrerequisiteError
		tnc       *TenantNotConnectedError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &tnc):
		return "tenant_not_connected"
	case errors.As(err, &transient):
		return "transient"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &dup):
		return "duplicate_key"
	case errors.As(err, &missing):
		return "missing_prerequisite"
	default:
		return "other"
	}
}
