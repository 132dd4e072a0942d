// Package integration contains the reconciliation bounded context.
// It keeps contacts, companies, invoices and catalog items consistent between a CRM
// (HubSpot) and an accounting system (Saasu).
//
// Key concepts:
//   - IdentityMapping: durable link between a CRM id and an accounting id for one EntityKind
//   - TenantSession: immutable snapshot of one tenant's ids and credentials for both systems
//   - CRMGateway / AccountingGateway: ports for the two remote systems
//   - Record, Outcome, ReconcileState: the input and result of one reconciliation attempt
//   - WebhookEvent: an inbound CRM notification
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
