package cdn

import (
	"context"

	"github.com/google/uuid"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/openstack-archive/poppy-sub002/cdn ProviderAdapter,DNSAdapter,StorageAdapter

// ProviderAdapter is implemented by drivers that know how to configure one
// CDN vendor's edge network. Implementations report failures through the
// returned Responder rather than panicking or returning an error so that
// the orchestrator can keep fanning out to the remaining providers.
type ProviderAdapter interface {
	// Name returns the provider identifier used as the key into a
	// service's provider-detail map.
	Name() string

	// CreateService provisions the service on the provider's network.
	CreateService(ctx context.Context, svc *ServiceDetails) Responder

	// UpdateService reconfigures an existing deployment from the old
	// service state to the updated one.
	UpdateService(ctx context.Context, old, updated *ServiceDetails) Responder

	// DeleteService removes the deployment identified by detail.
	DeleteService(ctx context.Context, detail ProviderDetail) Responder

	// Purge invalidates cached content for the deployment. An empty
	// purgeURL purges everything.
	Purge(ctx context.Context, detail ProviderDetail, purgeURL string) Responder
}

// DNSAdapter is implemented by drivers that map customer-facing domains to
// the access URLs handed back by the providers. All calls return one
// responder per provider so the orchestrator can merge DNS outcomes with
// provider outcomes entry by entry.
type DNSAdapter interface {
	// CreateRecords maps the service domains onto the access URLs from
	// each successful provider responder.
	CreateRecords(ctx context.Context, svc *ServiceDetails, responders []Responder) map[string]Responder

	// UpdateRecords adjusts the mappings after a service update.
	UpdateRecords(ctx context.Context, old, updated *ServiceDetails, responders []Responder) map[string]Responder

	// DeleteRecords removes the mappings for every provider entry in
	// details.
	DeleteRecords(ctx context.Context, svc *ServiceDetails, details map[string]ProviderDetail) map[string]Responder
}

// StorageAdapter is implemented by the central service-record store.
type StorageAdapter interface {
	// GetService looks up a service record. It returns
	// ErrServiceNotFound if no record exists.
	GetService(ctx context.Context, projectID string, serviceID uuid.UUID) (*ServiceDetails, error)

	// UpdateService upserts the full service record.
	UpdateService(ctx context.Context, svc *ServiceDetails) error

	// DeleteService removes the service record entirely.
	DeleteService(ctx context.Context, projectID string, serviceID uuid.UUID) error

	// UpdateProviderDetails replaces only the provider-detail map of an
	// existing record.
	UpdateProviderDetails(ctx context.Context, projectID string, serviceID uuid.UUID, details map[string]ProviderDetail) error
}
