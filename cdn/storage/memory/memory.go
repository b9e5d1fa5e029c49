// Package memory provides an in-memory service-record store which can be
// concurrently accessed by multiple clients.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/cdn"
)

// Compile-time check for ensuring InMemoryStorage implements StorageAdapter.
var _ cdn.StorageAdapter = (*InMemoryStorage)(nil)

type serviceKey struct {
	projectID string
	serviceID uuid.UUID
}

// InMemoryStorage implements an in-memory service-record store that can
// be concurrently accessed by multiple clients.
type InMemoryStorage struct {
	mu       sync.RWMutex
	services map[serviceKey]*cdn.ServiceDetails
}

// NewInMemoryStorage creates a new in-memory service-record store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		services: make(map[serviceKey]*cdn.ServiceDetails),
	}
}

// GetService looks up a service record by project and service ID.
func (s *InMemoryStorage) GetService(_ context.Context, projectID string, serviceID uuid.UUID) (*cdn.ServiceDetails, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, exists := s.services[serviceKey{projectID, serviceID}]
	if !exists {
		return nil, xerrors.Errorf("get service %s: %w", serviceID, cdn.ErrServiceNotFound)
	}
	return svc.Clone(), nil
}

// UpdateService upserts the full service record.
func (s *InMemoryStorage) UpdateService(_ context.Context, svc *cdn.ServiceDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[serviceKey{svc.ProjectID, svc.ServiceID}] = svc.Clone()
	return nil
}

// DeleteService removes the service record entirely.
func (s *InMemoryStorage) DeleteService(_ context.Context, projectID string, serviceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := serviceKey{projectID, serviceID}
	if _, exists := s.services[key]; !exists {
		return xerrors.Errorf("delete service %s: %w", serviceID, cdn.ErrServiceNotFound)
	}
	delete(s.services, key)
	return nil
}

// UpdateProviderDetails replaces only the provider-detail map of an
// existing record.
func (s *InMemoryStorage) UpdateProviderDetails(_ context.Context, projectID string, serviceID uuid.UUID, details map[string]cdn.ProviderDetail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, exists := s.services[serviceKey{projectID, serviceID}]
	if !exists {
		return xerrors.Errorf("update provider details for service %s: %w", serviceID, cdn.ErrServiceNotFound)
	}
	cloned := svc.Clone()
	cloned.ProviderDetails = make(map[string]cdn.ProviderDetail, len(details))
	for name, detail := range details {
		detail.AccessURLs = append([]cdn.Link(nil), detail.AccessURLs...)
		cloned.ProviderDetails[name] = detail
	}
	s.services[serviceKey{projectID, serviceID}] = cloned
	return nil
}
