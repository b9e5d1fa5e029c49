package cert

import (
	"context"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/openstack-archive/poppy-sub002/cert SANBackend,Storage,HostRequestQueue,JobPoster

// CertificateRequest carries the operator-supplied fields a provider
// needs to issue a SAN certificate. Fields the operator did not supply
// stay empty strings; validating their presence is the caller's
// responsibility, not the flow's.
type CertificateRequest struct {
	DomainName   string
	FlavorID     string
	ContactEmail string
	ContactName  string
	ContactPhone string
	Organization string
	AddressLine  string
	City         string
	Region       string
	Country      string
}

// ActivationResult is the outcome of a property-version activation call.
// A non-empty Warnings list means the provider requires the caller to
// acknowledge the listed warnings in a follow-up activation call; it is
// not a failure.
type ActivationResult struct {
	ActivationID string
	Warnings     []string
}

// SANBackend is implemented by drivers for a provider's SAN certificate
// pipeline.
type SANBackend interface {
	// Name returns the provider name the backend's details are recorded
	// under.
	Name() string

	// IssueCertificate submits a certificate request and returns the
	// provider-side tracking ID for the issuance workflow.
	IssueCertificate(ctx context.Context, req CertificateRequest) (string, error)

	// ModifySANHosts submits the host set change for the shared SAN
	// certificate and returns a tracking ID for the change.
	ModifySANHosts(ctx context.Context, addHosts, removeHosts []string) (string, error)

	// UpdatePropertyVersion creates a new editable version of the edge
	// property carrying the certificate hostnames and returns its
	// version number.
	UpdatePropertyVersion(ctx context.Context, property string) (int, error)

	// ActivatePropertyVersion pushes the property version to the edge
	// network. When the returned result carries warnings, the caller
	// must repeat the call passing them as ackWarnings.
	ActivatePropertyVersion(ctx context.Context, property string, version int, ackWarnings []string) (*ActivationResult, error)

	// CertificateStatus reports the issuance state for a tracking ID.
	CertificateStatus(ctx context.Context, trackingID string) (Status, error)
}

// Storage is implemented by the certificate record store.
type Storage interface {
	// CreateCertificate stores a new certificate record. It returns
	// ErrDuplicateCert when a record with the same
	// (flavor ID, domain name, type) key already exists in the project.
	CreateCertificate(ctx context.Context, cert *SSLCertificate) error

	// GetCertificate looks up a certificate record by its identity key.
	GetCertificate(ctx context.Context, projectID, domainName, flavorID string, certType Type) (*SSLCertificate, error)

	// UpdateCertDetails replaces the provider detail map of an existing
	// record.
	UpdateCertDetails(ctx context.Context, projectID, domainName, flavorID string, certType Type, details map[string]Detail) error

	// DeleteCertificate removes a certificate record.
	DeleteCertificate(ctx context.Context, projectID, domainName, flavorID string, certType Type) error
}

// HostRequestAction enumerates the queued SAN host operations.
type HostRequestAction string

const (
	ActionAddHost    HostRequestAction = "add"
	ActionRemoveHost HostRequestAction = "remove"
)

// HostRequest is one queued request to add or remove a hostname on the
// shared SAN certificate.
type HostRequest struct {
	Action   HostRequestAction `json:"action"`
	Hostname string            `json:"hostname"`
}

// HostRequestQueue holds SAN host requests between modify runs. Drained
// requests that could not be applied are requeued so no host request is
// ever lost.
type HostRequestQueue interface {
	// Enqueue appends a host request to the queue.
	Enqueue(ctx context.Context, req HostRequest) error

	// DrainAll atomically removes and returns all queued requests.
	DrainAll(ctx context.Context) ([]HostRequest, error)

	// Requeue prepends previously drained requests back onto the queue.
	Requeue(ctx context.Context, reqs []HostRequest) error
}

// JobPoster posts follow-up jobs to the distributed job board. It is the
// mechanism the certificate flows use to schedule their asynchronous
// status checks.
type JobPoster interface {
	PostJob(ctx context.Context, name, factory string, kwargs map[string]interface{}) error
}
