// Package cert implements SAN certificate provisioning on top of the flow
// engine: the certificate model, the issuing backend contract and the
// flows that create and modify shared SAN certificates and poll the
// provider's activation pipeline until a terminal state is reached.
package cert

import (
	"sort"

	"golang.org/x/xerrors"
)

var (
	// ErrCertNotFound is returned when a certificate lookup fails.
	ErrCertNotFound = xerrors.New("certificate not found")

	// ErrDuplicateCert is returned when a certificate with the same
	// identity key already exists for the project. Duplicates are a
	// caller error, not a race to resolve via retry.
	ErrDuplicateCert = xerrors.New("certificate already exists")

	// ErrInvalidStatus is returned when a certificate's recorded status
	// is not one of the recognized values.
	ErrInvalidStatus = xerrors.New("invalid certificate status")

	// ErrInvalidType is returned for certificate types other than san
	// and custom.
	ErrInvalidType = xerrors.New("invalid certificate type")
)

// Type enumerates the supported certificate kinds.
type Type string

const (
	TypeSAN    Type = "san"
	TypeCustom Type = "custom"
)

// ValidType reports whether t is a recognized certificate type.
func ValidType(t Type) bool { return t == TypeSAN || t == TypeCustom }

// Status enumerates the provisioning states a certificate can report.
type Status string

const (
	StatusCreateInProgress Status = "create_in_progress"
	StatusDeployed         Status = "deployed"
	StatusFailed           Status = "failed"
)

// Detail carries a provider's status bookkeeping for a certificate.
type Detail struct {
	// Free-form provider status info. The "status" entry, when present,
	// holds one of the Status values; a "san_cert_tracking_id" entry
	// holds the provider-side tracking ID for in-flight issuance.
	ExtraInfo map[string]interface{} `json:"extra_info"`
}

// SSLCertificate is the per-tenant certificate record. Its identity key
// for uniqueness checks is (flavor ID, domain name, type) scoped to the
// project.
type SSLCertificate struct {
	ProjectID   string            `json:"project_id"`
	FlavorID    string            `json:"flavor_id"`
	DomainName  string            `json:"domain_name"`
	CertType    Type              `json:"cert_type"`
	CertDetails map[string]Detail `json:"cert_details"`
}

// Clone returns a deep copy of the certificate record.
func (c *SSLCertificate) Clone() *SSLCertificate {
	cloned := *c
	if c.CertDetails != nil {
		cloned.CertDetails = make(map[string]Detail, len(c.CertDetails))
		for provider, detail := range c.CertDetails {
			extra := make(map[string]interface{}, len(detail.ExtraInfo))
			for k, v := range detail.ExtraInfo {
				extra[k] = v
			}
			cloned.CertDetails[provider] = Detail{ExtraInfo: extra}
		}
	}
	return &cloned
}

// Status derives the certificate's provisioning status from its provider
// details. An absent or empty detail map means the certificate requires
// no further provisioning and reports deployed. When multiple providers
// hold details, the provider that is first in lexicographic name order
// wins; the precedence is deliberately explicit rather than dependent on
// map iteration order. A recorded status outside the recognized set is a
// validation error, never silently defaulted.
func (c *SSLCertificate) Status() (Status, error) {
	if len(c.CertDetails) == 0 {
		return StatusDeployed, nil
	}

	providers := make([]string, 0, len(c.CertDetails))
	for name := range c.CertDetails {
		providers = append(providers, name)
	}
	sort.Strings(providers)

	extra := c.CertDetails[providers[0]].ExtraInfo
	raw, exists := extra["status"]
	if !exists {
		return StatusCreateInProgress, nil
	}
	status, _ := raw.(string)
	switch Status(status) {
	case StatusCreateInProgress, StatusDeployed, StatusFailed:
		return Status(status), nil
	}
	return "", xerrors.Errorf("certificate for domain %q reports status %q: %w", c.DomainName, raw, ErrInvalidStatus)
}
