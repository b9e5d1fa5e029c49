// Package mock implements a SAN certificate backend that simulates a
// provider's issuance and activation pipeline. Issued certificates move
// from in-progress to deployed after a configurable number of status
// polls, which makes the backend suitable for development deployments
// and end-to-end tests of the status-check loop.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/cert"
)

// Compile-time check for ensuring Backend implements cert.SANBackend.
var _ cert.SANBackend = (*Backend)(nil)

// Backend simulates a provider SAN certificate pipeline.
type Backend struct {
	name string

	// The number of status polls an issuance stays in progress before
	// reporting deployed.
	pollsUntilDeployed int

	mu           sync.Mutex
	nextTracking int
	nextVersion  int
	polls        map[string]int
	failures     map[string]string
}

// NewBackend creates a mock SAN backend with the specified provider name.
// Certificates report deployed after pollsUntilDeployed status checks.
func NewBackend(name string, pollsUntilDeployed int) *Backend {
	return &Backend{
		name:               name,
		pollsUntilDeployed: pollsUntilDeployed,
		polls:              make(map[string]int),
		failures:           make(map[string]string),
	}
}

// FailWith programs the named operation (one of "issue", "modify",
// "version", "activate", "status") to fail with errMsg. An empty errMsg
// clears the programmed failure.
func (b *Backend) FailWith(op, errMsg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg == "" {
		delete(b.failures, op)
		return
	}
	b.failures[op] = errMsg
}

// Name implements cert.SANBackend.
func (b *Backend) Name() string { return b.name }

// IssueCertificate implements cert.SANBackend.
func (b *Backend) IssueCertificate(_ context.Context, req cert.CertificateRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg, exists := b.failures["issue"]; exists {
		return "", xerrors.Errorf("issue certificate for %q: %s", req.DomainName, errMsg)
	}
	b.nextTracking++
	trackingID := fmt.Sprintf("%s-trk-%d", b.name, b.nextTracking)
	b.polls[trackingID] = 0
	return trackingID, nil
}

// ModifySANHosts implements cert.SANBackend.
func (b *Backend) ModifySANHosts(_ context.Context, addHosts, removeHosts []string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg, exists := b.failures["modify"]; exists {
		return "", xerrors.Errorf("modify san hosts (+%d/-%d): %s", len(addHosts), len(removeHosts), errMsg)
	}
	b.nextTracking++
	trackingID := fmt.Sprintf("%s-trk-%d", b.name, b.nextTracking)
	b.polls[trackingID] = 0
	return trackingID, nil
}

// UpdatePropertyVersion implements cert.SANBackend.
func (b *Backend) UpdatePropertyVersion(_ context.Context, property string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg, exists := b.failures["version"]; exists {
		return 0, xerrors.Errorf("update property version for %q: %s", property, errMsg)
	}
	b.nextVersion++
	return b.nextVersion, nil
}

// ActivatePropertyVersion implements cert.SANBackend.
func (b *Backend) ActivatePropertyVersion(_ context.Context, property string, version int, ackWarnings []string) (*cert.ActivationResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg, exists := b.failures["activate"]; exists {
		return nil, xerrors.Errorf("activate version %d of %q: %s", version, property, errMsg)
	}
	return &cert.ActivationResult{
		ActivationID: fmt.Sprintf("%s-act-%d", b.name, version),
	}, nil
}

// CertificateStatus implements cert.SANBackend.
func (b *Backend) CertificateStatus(_ context.Context, trackingID string) (cert.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if errMsg, exists := b.failures["status"]; exists {
		return "", xerrors.Errorf("certificate status for %q: %s", trackingID, errMsg)
	}
	polls, exists := b.polls[trackingID]
	if !exists {
		return "", xerrors.Errorf("certificate status: tracking id %q: %w", trackingID, cert.ErrCertNotFound)
	}
	b.polls[trackingID] = polls + 1
	if polls+1 >= b.pollsUntilDeployed {
		return cert.StatusDeployed, nil
	}
	return cert.StatusCreateInProgress, nil
}
