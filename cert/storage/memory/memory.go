// Package memory provides in-memory implementations of the certificate
// store and the SAN host request queue.
package memory

import (
	"context"
	"sync"

	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/cert"
)

// Compile-time checks for ensuring the in-memory types implement the
// cert contracts.
var (
	_ cert.Storage          = (*InMemoryStorage)(nil)
	_ cert.HostRequestQueue = (*InMemoryQueue)(nil)
)

type certKey struct {
	projectID  string
	flavorID   string
	domainName string
	certType   cert.Type
}

// InMemoryStorage implements an in-memory certificate record store that
// can be concurrently accessed by multiple clients.
type InMemoryStorage struct {
	mu    sync.RWMutex
	certs map[certKey]*cert.SSLCertificate
}

// NewInMemoryStorage creates a new in-memory certificate store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{certs: make(map[certKey]*cert.SSLCertificate)}
}

// CreateCertificate stores a new certificate record, enforcing the
// per-project (flavor ID, domain name, type) uniqueness key.
func (s *InMemoryStorage) CreateCertificate(_ context.Context, c *cert.SSLCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(c)
	if _, exists := s.certs[key]; exists {
		return xerrors.Errorf("create certificate for %q: %w", c.DomainName, cert.ErrDuplicateCert)
	}
	s.certs[key] = c.Clone()
	return nil
}

// GetCertificate looks up a certificate record by its identity key.
func (s *InMemoryStorage) GetCertificate(_ context.Context, projectID, domainName, flavorID string, certType cert.Type) (*cert.SSLCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, exists := s.certs[certKey{projectID, flavorID, domainName, certType}]
	if !exists {
		return nil, xerrors.Errorf("get certificate for %q: %w", domainName, cert.ErrCertNotFound)
	}
	return c.Clone(), nil
}

// UpdateCertDetails replaces the provider detail map of an existing
// record.
func (s *InMemoryStorage) UpdateCertDetails(_ context.Context, projectID, domainName, flavorID string, certType cert.Type, details map[string]cert.Detail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := certKey{projectID, flavorID, domainName, certType}
	c, exists := s.certs[key]
	if !exists {
		return xerrors.Errorf("update certificate details for %q: %w", domainName, cert.ErrCertNotFound)
	}
	cloned := c.Clone()
	cloned.CertDetails = details
	s.certs[key] = cloned.Clone()
	return nil
}

// DeleteCertificate removes a certificate record.
func (s *InMemoryStorage) DeleteCertificate(_ context.Context, projectID, domainName, flavorID string, certType cert.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := certKey{projectID, flavorID, domainName, certType}
	if _, exists := s.certs[key]; !exists {
		return xerrors.Errorf("delete certificate for %q: %w", domainName, cert.ErrCertNotFound)
	}
	delete(s.certs, key)
	return nil
}

func keyOf(c *cert.SSLCertificate) certKey {
	return certKey{c.ProjectID, c.FlavorID, c.DomainName, c.CertType}
}

// InMemoryQueue implements an in-memory SAN host request queue that can
// be concurrently accessed by multiple clients.
type InMemoryQueue struct {
	mu   sync.Mutex
	reqs []cert.HostRequest
}

// NewInMemoryQueue creates a new in-memory host request queue.
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

// Enqueue appends a host request to the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, req cert.HostRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

// DrainAll atomically removes and returns all queued requests.
func (q *InMemoryQueue) DrainAll(_ context.Context) ([]cert.HostRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.reqs
	q.reqs = nil
	return drained, nil
}

// Requeue prepends previously drained requests back onto the queue.
func (q *InMemoryQueue) Requeue(_ context.Context, reqs []cert.HostRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(append([]cert.HostRequest(nil), reqs...), q.reqs...)
	return nil
}

// Len returns the number of queued requests.
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reqs)
}
