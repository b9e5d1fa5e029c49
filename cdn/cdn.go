// Package cdn defines the service model for the multi-tenant CDN control
// plane together with the provider, DNS and storage adapter contracts and
// the orchestrator that fans service lifecycle operations out to them.
package cdn

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// ErrServiceNotFound is returned when a service lookup fails.
var ErrServiceNotFound = xerrors.New("service not found")

// Status captures the lifecycle state of a service or of a single
// provider's deployment of it.
type Status string

const (
	StatusCreateInProgress Status = "create_in_progress"
	StatusUpdateInProgress Status = "update_in_progress"
	StatusDeleteInProgress Status = "delete_in_progress"
	StatusDeployed         Status = "deployed"
	StatusFailed           Status = "failed"
)

// Link is a named URL reference returned by provider and DNS back ends.
type Link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// Domain is a hostname served by a CDN service.
type Domain struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol"`
}

// Origin describes an origin server that a CDN service pulls from.
type Origin struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	SSL  bool   `json:"ssl"`
}

// CachingRule describes a TTL rule applied by the CDN edge.
type CachingRule struct {
	Name string `json:"name"`
	TTL  int    `json:"ttl"`
}

// ProviderDetail is the persisted per-provider outcome for a service. An
// entry is removed from a service's provider-detail map exactly when that
// provider has converged to the requested end state; entries carrying
// ErrorInfo persist so that a retry or an operator can act on them without
// re-touching providers that already succeeded.
type ProviderDetail struct {
	// The provider-side identifier for the deployed service.
	ID string `json:"id"`

	// The URLs through which the deployed service is reachable.
	AccessURLs []Link `json:"access_urls,omitempty"`

	// The provider-local lifecycle status.
	Status Status `json:"status"`

	// A description of the failure that left this entry behind; empty
	// for healthy entries.
	ErrorInfo string `json:"error_info,omitempty"`
}

// ServiceDetails is the per-tenant, per-service record operated on by the
// orchestrator.
type ServiceDetails struct {
	ProjectID       string                    `json:"project_id"`
	ServiceID       uuid.UUID                 `json:"service_id"`
	Name            string                    `json:"name"`
	FlavorID        string                    `json:"flavor_id"`
	Domains         []Domain                  `json:"domains"`
	Origins         []Origin                  `json:"origins"`
	CachingRules    []CachingRule             `json:"caching_rules,omitempty"`
	Status          Status                    `json:"status"`
	ProviderDetails map[string]ProviderDetail `json:"provider_details"`
}

// Clone returns a deep copy of the service record.
func (s *ServiceDetails) Clone() *ServiceDetails {
	cloned := *s
	cloned.Domains = append([]Domain(nil), s.Domains...)
	cloned.Origins = append([]Origin(nil), s.Origins...)
	cloned.CachingRules = append([]CachingRule(nil), s.CachingRules...)
	cloned.ProviderDetails = cloneDetails(s.ProviderDetails)
	return &cloned
}

func cloneDetails(details map[string]ProviderDetail) map[string]ProviderDetail {
	if details == nil {
		return nil
	}
	cloned := make(map[string]ProviderDetail, len(details))
	for name, detail := range details {
		detail.AccessURLs = append([]Link(nil), detail.AccessURLs...)
		cloned[name] = detail
	}
	return cloned
}

// Responder is the per-provider result shape returned by provider and DNS
// calls: either an {id, links} success or an {error, error detail}
// failure. Failures are always captured into responders instead of being
// raised across the orchestrator boundary so that one provider's failure
// never aborts processing of the others.
type Responder struct {
	// The provider (or DNS backend) that produced this result.
	Provider string

	// The provider-side identifier allocated for the operation.
	ID string

	// The links associated with the operation outcome.
	Links []Link

	// The failure description; empty on success.
	Error string

	// Additional failure detail for operator triage.
	ErrorDetail string
}

// Failed reports whether the responder describes a failure.
func (r Responder) Failed() bool { return r.Error != "" }

// ErrorInfo flattens the responder failure into a single description.
func (r Responder) ErrorInfo() string {
	if r.Error == "" {
		return ""
	}
	if r.ErrorDetail == "" {
		return r.Error
	}
	return strings.Join([]string{r.Error, r.ErrorDetail}, ": ")
}

// FailedResponder builds a failure responder for the named provider.
func FailedResponder(provider, errMsg, errDetail string) Responder {
	return Responder{Provider: provider, Error: errMsg, ErrorDetail: errDetail}
}
