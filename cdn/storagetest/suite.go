// Package storagetest provides a re-usable set of service-storage tests
// that can be executed against any type that implements
// cdn.StorageAdapter.
package storagetest

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"

	"github.com/openstack-archive/poppy-sub002/cdn"
)

// SuiteBase defines a re-usable set of storage-related tests that can be
// executed against any type that implements cdn.StorageAdapter.
type SuiteBase struct {
	s cdn.StorageAdapter
}

// SetStorage configures the test suite to run all tests against s.
func (s *SuiteBase) SetStorage(storage cdn.StorageAdapter) {
	s.s = storage
}

func (s *SuiteBase) TestServiceRoundTrip(c *gc.C) {
	svc := exampleService()
	err := s.s.UpdateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	got, err := s.s.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, svc)

	// Mutating the returned copy must not leak into the store.
	got.Name = "mutated"
	got.ProviderDetails["mock"] = cdn.ProviderDetail{Status: cdn.StatusFailed}
	again, err := s.s.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)
	c.Assert(again, gc.DeepEquals, svc)
}

func (s *SuiteBase) TestGetUnknownService(c *gc.C) {
	_, err := s.s.GetService(context.TODO(), "tenant-42", uuid.New())
	c.Assert(xerrors.Is(err, cdn.ErrServiceNotFound), gc.Equals, true)
}

func (s *SuiteBase) TestProjectScoping(c *gc.C) {
	svc := exampleService()
	err := s.s.UpdateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	// Same service ID under another project must not resolve.
	_, err = s.s.GetService(context.TODO(), "other-tenant", svc.ServiceID)
	c.Assert(xerrors.Is(err, cdn.ErrServiceNotFound), gc.Equals, true)
}

func (s *SuiteBase) TestUpdateProviderDetails(c *gc.C) {
	svc := exampleService()
	err := s.s.UpdateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	trimmed := map[string]cdn.ProviderDetail{
		"mock": {Status: cdn.StatusFailed, ErrorInfo: "edge configuration rejected"},
	}
	err = s.s.UpdateProviderDetails(context.TODO(), svc.ProjectID, svc.ServiceID, trimmed)
	c.Assert(err, gc.IsNil)

	got, err := s.s.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)
	c.Assert(got.ProviderDetails, gc.DeepEquals, trimmed)
	c.Assert(got.Name, gc.Equals, svc.Name)

	err = s.s.UpdateProviderDetails(context.TODO(), svc.ProjectID, uuid.New(), trimmed)
	c.Assert(xerrors.Is(err, cdn.ErrServiceNotFound), gc.Equals, true)
}

func (s *SuiteBase) TestDeleteService(c *gc.C) {
	svc := exampleService()
	err := s.s.UpdateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	err = s.s.DeleteService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)

	_, err = s.s.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(xerrors.Is(err, cdn.ErrServiceNotFound), gc.Equals, true)

	err = s.s.DeleteService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(xerrors.Is(err, cdn.ErrServiceNotFound), gc.Equals, true)
}

func exampleService() *cdn.ServiceDetails {
	return &cdn.ServiceDetails{
		ProjectID: "tenant-42",
		ServiceID: uuid.New(),
		Name:      "shop-assets",
		FlavorID:  "cdn",
		Domains:   []cdn.Domain{{Name: "assets.example.com", Protocol: "https"}},
		Origins:   []cdn.Origin{{Host: "origin.example.com", Port: 443, SSL: true}},
		Status:    cdn.StatusDeployed,
		ProviderDetails: map[string]cdn.ProviderDetail{
			"mock": {
				ID:         "mock-svc-1",
				AccessURLs: []cdn.Link{{Href: "assets.example.com.mockcdn.net", Rel: "access_url"}},
				Status:     cdn.StatusDeployed,
			},
		},
	}
}
