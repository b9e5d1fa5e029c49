package memory

import (
	"context"
	"testing"

	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"

	"github.com/openstack-archive/poppy-sub002/cert"
)

var (
	_ = gc.Suite(new(InMemoryStorageTestSuite))
	_ = gc.Suite(new(InMemoryQueueTestSuite))
)

type InMemoryStorageTestSuite struct {
	s *InMemoryStorage
}

func (s *InMemoryStorageTestSuite) SetUpTest(c *gc.C) {
	s.s = NewInMemoryStorage()
}

func (s *InMemoryStorageTestSuite) TestCreateAndGet(c *gc.C) {
	crt := exampleCert()
	c.Assert(s.s.CreateCertificate(context.TODO(), crt), gc.IsNil)

	got, err := s.s.GetCertificate(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.DeepEquals, crt)
}

func (s *InMemoryStorageTestSuite) TestDuplicateKeyReportsConflict(c *gc.C) {
	c.Assert(s.s.CreateCertificate(context.TODO(), exampleCert()), gc.IsNil)

	err := s.s.CreateCertificate(context.TODO(), exampleCert())
	c.Assert(xerrors.Is(err, cert.ErrDuplicateCert), gc.Equals, true)

	// The same key under another project is a distinct certificate.
	other := exampleCert()
	other.ProjectID = "tenant-43"
	c.Assert(s.s.CreateCertificate(context.TODO(), other), gc.IsNil)

	// So is the same domain with a different type.
	custom := exampleCert()
	custom.CertType = cert.TypeCustom
	c.Assert(s.s.CreateCertificate(context.TODO(), custom), gc.IsNil)
}

func (s *InMemoryStorageTestSuite) TestUpdateCertDetails(c *gc.C) {
	crt := exampleCert()
	c.Assert(s.s.CreateCertificate(context.TODO(), crt), gc.IsNil)

	details := map[string]cert.Detail{
		"akamai": {ExtraInfo: map[string]interface{}{
			"status":               string(cert.StatusDeployed),
			"san_cert_tracking_id": "trk-1",
		}},
	}
	err := s.s.UpdateCertDetails(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType, details)
	c.Assert(err, gc.IsNil)

	got, err := s.s.GetCertificate(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType)
	c.Assert(err, gc.IsNil)
	c.Assert(got.CertDetails, gc.DeepEquals, details)

	err = s.s.UpdateCertDetails(context.TODO(), crt.ProjectID, "unknown.example.com", crt.FlavorID, crt.CertType, details)
	c.Assert(xerrors.Is(err, cert.ErrCertNotFound), gc.Equals, true)
}

func (s *InMemoryStorageTestSuite) TestDeleteCertificate(c *gc.C) {
	crt := exampleCert()
	c.Assert(s.s.CreateCertificate(context.TODO(), crt), gc.IsNil)
	c.Assert(s.s.DeleteCertificate(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType), gc.IsNil)

	_, err := s.s.GetCertificate(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType)
	c.Assert(xerrors.Is(err, cert.ErrCertNotFound), gc.Equals, true)

	err = s.s.DeleteCertificate(context.TODO(), crt.ProjectID, crt.DomainName, crt.FlavorID, crt.CertType)
	c.Assert(xerrors.Is(err, cert.ErrCertNotFound), gc.Equals, true)
}

type InMemoryQueueTestSuite struct {
	q *InMemoryQueue
}

func (s *InMemoryQueueTestSuite) SetUpTest(c *gc.C) {
	s.q = NewInMemoryQueue()
}

func (s *InMemoryQueueTestSuite) TestDrainPreservesOrder(c *gc.C) {
	reqs := []cert.HostRequest{
		{Action: cert.ActionAddHost, Hostname: "www1.example.com"},
		{Action: cert.ActionRemoveHost, Hostname: "www2.example.com"},
	}
	for _, req := range reqs {
		c.Assert(s.q.Enqueue(context.TODO(), req), gc.IsNil)
	}

	drained, err := s.q.DrainAll(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(drained, gc.DeepEquals, reqs)
	c.Assert(s.q.Len(), gc.Equals, 0)
}

func (s *InMemoryQueueTestSuite) TestRequeuePrepends(c *gc.C) {
	c.Assert(s.q.Enqueue(context.TODO(), cert.HostRequest{Action: cert.ActionAddHost, Hostname: "late.example.com"}), gc.IsNil)

	requeued := []cert.HostRequest{
		{Action: cert.ActionAddHost, Hostname: "early.example.com"},
	}
	c.Assert(s.q.Requeue(context.TODO(), requeued), gc.IsNil)

	drained, err := s.q.DrainAll(context.TODO())
	c.Assert(err, gc.IsNil)
	c.Assert(drained, gc.DeepEquals, []cert.HostRequest{
		{Action: cert.ActionAddHost, Hostname: "early.example.com"},
		{Action: cert.ActionAddHost, Hostname: "late.example.com"},
	})
}

func exampleCert() *cert.SSLCertificate {
	return &cert.SSLCertificate{
		ProjectID:  "tenant-42",
		FlavorID:   "cdn",
		DomainName: "www.example.com",
		CertType:   cert.TypeSAN,
	}
}

// Register our test-suite with go test.
func Test(t *testing.T) { gc.TestingT(t) }
