package cert_test

import (
	"context"
	"sync"

	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"

	"github.com/openstack-archive/poppy-sub002/cert"
	"github.com/openstack-archive/poppy-sub002/cert/storage/memory"
	"github.com/openstack-archive/poppy-sub002/flow"
)

var _ = gc.Suite(new(FlowsTestSuite))

type FlowsTestSuite struct {
	backend *stubBackend
	storage *memory.InMemoryStorage
	queue   *memory.InMemoryQueue
	poster  *recordingPoster
	flows   *cert.Flows
}

func (s *FlowsTestSuite) SetUpTest(c *gc.C) {
	s.backend = newStubBackend("akamai")
	s.storage = memory.NewInMemoryStorage()
	s.queue = memory.NewInMemoryQueue()
	s.poster = new(recordingPoster)

	var err error
	s.flows, err = cert.NewFlows(cert.Deps{
		Backend:  s.backend,
		Storage:  s.storage,
		Queue:    s.queue,
		Poster:   s.poster,
		Property: "san.edge.example.net",
	})
	c.Assert(err, gc.IsNil)
}

func (s *FlowsTestSuite) TestCreateSANCertFlow(c *gc.C) {
	kwargs := flow.Values{
		"project_id":    "tenant-42",
		"domain_name":   "www.example.com",
		"flavor_id":     "cdn",
		"cert_type":     "san",
		"contact_email": "ops@example.com",
		// The remaining contact fields are deliberately omitted; they
		// default to empty strings rather than failing the flow.
	}
	results, err := s.runFlow(c, cert.FactoryCreateSANCert, kwargs)
	c.Assert(err, gc.IsNil)
	c.Assert(results["cert_tracking_id"], gc.Equals, "trk-1")
	c.Assert(s.backend.issuedReqs, gc.HasLen, 1)
	c.Assert(s.backend.issuedReqs[0].ContactEmail, gc.Equals, "ops@example.com")
	c.Assert(s.backend.issuedReqs[0].Organization, gc.Equals, "")

	crt, err := s.storage.GetCertificate(context.TODO(), "tenant-42", "www.example.com", "cdn", cert.TypeSAN)
	c.Assert(err, gc.IsNil)
	status, err := crt.Status()
	c.Assert(err, gc.IsNil)
	c.Assert(status, gc.Equals, cert.StatusCreateInProgress)
	c.Assert(crt.CertDetails["akamai"].ExtraInfo["san_cert_tracking_id"], gc.Equals, "trk-1")

	c.Assert(s.poster.jobs, gc.HasLen, 1)
	c.Assert(s.poster.jobs[0].factory, gc.Equals, cert.FactoryCheckCertStatus)
	c.Assert(s.poster.jobs[0].kwargs["tracking_id"], gc.Equals, "trk-1")
}

func (s *FlowsTestSuite) TestCreateDuplicateCertIsRejected(c *gc.C) {
	err := s.storage.CreateCertificate(context.TODO(), &cert.SSLCertificate{
		ProjectID:  "tenant-42",
		FlavorID:   "cdn",
		DomainName: "www.example.com",
		CertType:   cert.TypeSAN,
	})
	c.Assert(err, gc.IsNil)

	_, err = s.runFlow(c, cert.FactoryCreateSANCert, flow.Values{
		"project_id":  "tenant-42",
		"domain_name": "www.example.com",
		"flavor_id":   "cdn",
	})
	c.Assert(xerrors.Is(err, cert.ErrDuplicateCert), gc.Equals, true)
	// A duplicate is a caller error; retrying the job cannot help.
	c.Assert(flow.IsRetryable(err), gc.Equals, false)
	c.Assert(s.poster.jobs, gc.HasLen, 0)
}

func (s *FlowsTestSuite) TestCreateSubmissionFailureFailsOutright(c *gc.C) {
	s.backend.issue = func(cert.CertificateRequest) (string, error) {
		return "", xerrors.New("san cert request rejected")
	}
	_, err := s.runFlow(c, cert.FactoryCreateSANCert, flow.Values{
		"project_id":  "tenant-42",
		"domain_name": "www.example.com",
		"flavor_id":   "cdn",
	})
	c.Assert(err, gc.ErrorMatches, "(?s).*san cert request rejected.*")
	c.Assert(flow.IsRetryable(err), gc.Equals, false)
	c.Assert(s.poster.jobs, gc.HasLen, 0)
}

func (s *FlowsTestSuite) TestInvalidCertTypeRejectedAtBuildTime(c *gc.C) {
	_, err := s.flows.CreateSANCertFlow(flow.Values{"cert_type": "wildcard"})
	c.Assert(xerrors.Is(err, cert.ErrInvalidType), gc.Equals, true)
}

func (s *FlowsTestSuite) TestModifyFlowResolvesHostRequests(c *gc.C) {
	s.enqueue(c, cert.ActionAddHost, "www1.example.com")
	s.enqueue(c, cert.ActionAddHost, "www2.example.com")
	s.enqueue(c, cert.ActionRemoveHost, "www1.example.com")

	_, err := s.runFlow(c, cert.FactoryModifySANCerts, modifyKwargs())
	c.Assert(err, gc.IsNil)

	// The later remove supersedes the earlier add for www1.
	c.Assert(s.backend.modifiedAdd, gc.DeepEquals, []string{"www2.example.com"})
	c.Assert(s.backend.modifiedRemove, gc.DeepEquals, []string{"www1.example.com"})
	c.Assert(s.queue.Len(), gc.Equals, 0)
	c.Assert(s.poster.jobs, gc.HasLen, 1)
	c.Assert(s.poster.jobs[0].factory, gc.Equals, cert.FactoryCheckCertStatus)
}

func (s *FlowsTestSuite) TestModifyFlowRequeuesOnFailure(c *gc.C) {
	s.enqueue(c, cert.ActionAddHost, "www1.example.com")
	s.enqueue(c, cert.ActionRemoveHost, "www2.example.com")
	s.backend.modify = func(_, _ []string) (string, error) {
		return "", xerrors.New("san cert busy")
	}

	_, err := s.runFlow(c, cert.FactoryModifySANCerts, modifyKwargs())
	c.Assert(err, gc.ErrorMatches, "(?s).*san cert busy.*")
	c.Assert(flow.IsRetryable(err), gc.Equals, true)

	// Both the add and the remove request survive the failure.
	requeued, drainErr := s.queue.DrainAll(context.TODO())
	c.Assert(drainErr, gc.IsNil)
	c.Assert(requeued, gc.DeepEquals, []cert.HostRequest{
		{Action: cert.ActionAddHost, Hostname: "www1.example.com"},
		{Action: cert.ActionRemoveHost, Hostname: "www2.example.com"},
	})
	c.Assert(s.poster.jobs, gc.HasLen, 0)
}

func (s *FlowsTestSuite) TestModifyFlowWithEmptyQueueIsANoOp(c *gc.C) {
	_, err := s.runFlow(c, cert.FactoryModifySANCerts, modifyKwargs())
	c.Assert(err, gc.IsNil)
	c.Assert(s.backend.modifyCalls, gc.Equals, 0)
	c.Assert(s.poster.jobs, gc.HasLen, 0)
}

func (s *FlowsTestSuite) TestStatusCheckOrderingAndWarningsAck(c *gc.C) {
	s.seedCert(c)
	s.backend.activate = func(property string, version int, acks []string) (*cert.ActivationResult, error) {
		if len(acks) == 0 {
			// First round trip: the provider wants the warnings
			// acknowledged.
			return &cert.ActivationResult{Warnings: []string{"hostname pending validation"}}, nil
		}
		c.Assert(acks, gc.DeepEquals, []string{"hostname pending validation"})
		return &cert.ActivationResult{ActivationID: "act-1"}, nil
	}

	_, err := s.runFlow(c, cert.FactoryCheckCertStatus, statusKwargs())
	c.Assert(err, gc.IsNil)
	c.Assert(s.backend.calls, gc.DeepEquals, []string{
		"UpdatePropertyVersion",
		"ActivatePropertyVersion",
		"ActivatePropertyVersion",
		"CertificateStatus",
	})

	crt, err := s.storage.GetCertificate(context.TODO(), "tenant-42", "www.example.com", "cdn", cert.TypeSAN)
	c.Assert(err, gc.IsNil)
	status, err := crt.Status()
	c.Assert(err, gc.IsNil)
	c.Assert(status, gc.Equals, cert.StatusDeployed)

	// Terminal state; no further status check is scheduled.
	c.Assert(s.poster.jobs, gc.HasLen, 0)
}

func (s *FlowsTestSuite) TestStatusCheckRepollsWhileInProgress(c *gc.C) {
	s.seedCert(c)
	s.backend.status = func(string) (cert.Status, error) {
		return cert.StatusCreateInProgress, nil
	}

	_, err := s.runFlow(c, cert.FactoryCheckCertStatus, statusKwargs())
	c.Assert(err, gc.IsNil)
	c.Assert(s.poster.jobs, gc.HasLen, 1)
	c.Assert(s.poster.jobs[0].factory, gc.Equals, cert.FactoryCheckCertStatus)
	c.Assert(s.poster.jobs[0].kwargs["tracking_id"], gc.Equals, "trk-1")
}

func (s *FlowsTestSuite) TestActivationRetriesWithinBudget(c *gc.C) {
	s.seedCert(c)
	attempt := 0
	s.backend.activate = func(string, int, []string) (*cert.ActivationResult, error) {
		attempt++
		if attempt == 1 {
			return nil, xerrors.New("activation pipeline timeout")
		}
		return &cert.ActivationResult{ActivationID: "act-1"}, nil
	}

	_, err := s.runFlow(c, cert.FactoryCheckCertStatus, statusKwargs())
	c.Assert(err, gc.IsNil)
	c.Assert(attempt, gc.Equals, 2)
	// The property version task sits outside the retry wrapper and must
	// not be re-run by the activation retry.
	c.Assert(s.backend.versionCalls, gc.Equals, 1)
}

func (s *FlowsTestSuite) TestStatusCheckRequiresTrackingID(c *gc.C) {
	_, err := s.flows.CheckCertStatusFlow(flow.Values{"project_id": "tenant-42"})
	c.Assert(err, gc.ErrorMatches, ".*tracking_id must be specified.*")
}

func (s *FlowsTestSuite) runFlow(c *gc.C, factoryName string, kwargs flow.Values) (flow.Values, error) {
	reg := flow.NewRegistry()
	c.Assert(s.flows.Register(reg), gc.IsNil)
	factory, err := reg.Lookup(factoryName)
	c.Assert(err, gc.IsNil)

	jobFlow, err := factory(kwargs)
	c.Assert(err, gc.IsNil)

	engine, err := flow.NewEngine(flow.Config{Flow: jobFlow, Initial: kwargs})
	c.Assert(err, gc.IsNil)
	c.Assert(engine.Compile(), gc.IsNil)
	c.Assert(engine.Prepare(), gc.IsNil)
	c.Assert(engine.Validate(), gc.IsNil)
	if err := engine.Run(context.TODO()); err != nil {
		return nil, err
	}
	return engine.Results(), nil
}

func (s *FlowsTestSuite) enqueue(c *gc.C, action cert.HostRequestAction, host string) {
	err := s.queue.Enqueue(context.TODO(), cert.HostRequest{Action: action, Hostname: host})
	c.Assert(err, gc.IsNil)
}

func (s *FlowsTestSuite) seedCert(c *gc.C) {
	err := s.storage.CreateCertificate(context.TODO(), &cert.SSLCertificate{
		ProjectID:  "tenant-42",
		FlavorID:   "cdn",
		DomainName: "www.example.com",
		CertType:   cert.TypeSAN,
	})
	c.Assert(err, gc.IsNil)
}

func modifyKwargs() flow.Values {
	return flow.Values{
		"project_id":  "tenant-42",
		"domain_name": "www.example.com",
		"flavor_id":   "cdn",
	}
}

func statusKwargs() flow.Values {
	return flow.Values{
		"project_id":  "tenant-42",
		"domain_name": "www.example.com",
		"flavor_id":   "cdn",
		"cert_type":   "san",
		"tracking_id": "trk-1",
	}
}

// stubBackend is a programmable SANBackend that records its calls.
type stubBackend struct {
	name string

	mu             sync.Mutex
	calls          []string
	issuedReqs     []cert.CertificateRequest
	modifiedAdd    []string
	modifiedRemove []string
	modifyCalls    int
	versionCalls   int

	issue    func(req cert.CertificateRequest) (string, error)
	modify   func(add, remove []string) (string, error)
	activate func(property string, version int, acks []string) (*cert.ActivationResult, error)
	status   func(trackingID string) (cert.Status, error)
}

func newStubBackend(name string) *stubBackend {
	return &stubBackend{name: name}
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) IssueCertificate(_ context.Context, req cert.CertificateRequest) (string, error) {
	b.record("IssueCertificate")
	b.mu.Lock()
	b.issuedReqs = append(b.issuedReqs, req)
	b.mu.Unlock()
	if b.issue != nil {
		return b.issue(req)
	}
	return "trk-1", nil
}

func (b *stubBackend) ModifySANHosts(_ context.Context, add, remove []string) (string, error) {
	b.record("ModifySANHosts")
	b.mu.Lock()
	b.modifyCalls++
	b.modifiedAdd = add
	b.modifiedRemove = remove
	b.mu.Unlock()
	if b.modify != nil {
		return b.modify(add, remove)
	}
	return "trk-1", nil
}

func (b *stubBackend) UpdatePropertyVersion(_ context.Context, _ string) (int, error) {
	b.record("UpdatePropertyVersion")
	b.mu.Lock()
	b.versionCalls++
	b.mu.Unlock()
	return 7, nil
}

func (b *stubBackend) ActivatePropertyVersion(_ context.Context, property string, version int, acks []string) (*cert.ActivationResult, error) {
	b.record("ActivatePropertyVersion")
	if b.activate != nil {
		return b.activate(property, version, acks)
	}
	return &cert.ActivationResult{ActivationID: "act-1"}, nil
}

func (b *stubBackend) CertificateStatus(_ context.Context, trackingID string) (cert.Status, error) {
	b.record("CertificateStatus")
	if b.status != nil {
		return b.status(trackingID)
	}
	return cert.StatusDeployed, nil
}

func (b *stubBackend) record(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
}

type postedJob struct {
	name    string
	factory string
	kwargs  map[string]interface{}
}

// recordingPoster captures posted follow-up jobs.
type recordingPoster struct {
	mu   sync.Mutex
	jobs []postedJob
}

func (p *recordingPoster) PostJob(_ context.Context, name, factory string, kwargs map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, postedJob{name: name, factory: factory, kwargs: kwargs})
	return nil
}
