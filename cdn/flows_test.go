package cdn_test

import (
	"context"

	"github.com/google/uuid"
	gc "gopkg.in/check.v1"

	"github.com/openstack-archive/poppy-sub002/cdn"
	"github.com/openstack-archive/poppy-sub002/flow"
)

var _ = gc.Suite(new(ServiceFlowsTestSuite))

type ServiceFlowsTestSuite struct {
	OrchestratorTestSuite
	reg *flow.Registry
}

func (s *ServiceFlowsTestSuite) SetUpTest(c *gc.C) {
	s.OrchestratorTestSuite.SetUpTest(c)
	s.reg = flow.NewRegistry()
	c.Assert(s.orc.RegisterFlows(s.reg), gc.IsNil)
}

func (s *ServiceFlowsTestSuite) TestCreateServiceFlow(c *gc.C) {
	svc := exampleService()
	results, err := s.runFlow(c, cdn.FactoryCreateService, flow.Values{"service": svc})
	c.Assert(err, gc.IsNil)
	c.Assert(results["service_status"], gc.Equals, string(cdn.StatusDeployed))

	stored, err := s.storage.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.ProviderDetails, gc.HasLen, 2)
}

func (s *ServiceFlowsTestSuite) TestDeleteServiceFlow(c *gc.C) {
	svc := exampleService()
	_, err := s.orc.CreateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	_, err = s.runFlow(c, cdn.FactoryDeleteService, flow.Values{
		"project_id": svc.ProjectID,
		"service_id": svc.ServiceID.String(),
	})
	c.Assert(err, gc.IsNil)

	_, err = s.storage.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.ErrorMatches, ".*service not found.*")
}

func (s *ServiceFlowsTestSuite) TestPurgeServiceFlow(c *gc.C) {
	svc := exampleService()
	_, err := s.orc.CreateService(context.TODO(), svc)
	c.Assert(err, gc.IsNil)

	s.akamai.FailWith("purge", "purge queue full")
	_, err = s.runFlow(c, cdn.FactoryPurgeService, flow.Values{
		"project_id": svc.ProjectID,
		"service_id": svc.ServiceID.String(),
		"purge_url":  "/images/*",
	})
	c.Assert(err, gc.IsNil)

	stored, err := s.storage.GetService(context.TODO(), svc.ProjectID, svc.ServiceID)
	c.Assert(err, gc.IsNil)
	c.Assert(stored.ProviderDetails["akamai"].Status, gc.Equals, cdn.StatusFailed)
}

func (s *ServiceFlowsTestSuite) TestFlowKwargValidation(c *gc.C) {
	factory, err := s.reg.Lookup(cdn.FactoryCreateService)
	c.Assert(err, gc.IsNil)
	_, err = factory(flow.Values{})
	c.Assert(err, gc.ErrorMatches, ".*service has not been provided.*")

	factory, err = s.reg.Lookup(cdn.FactoryDeleteService)
	c.Assert(err, gc.IsNil)
	_, err = factory(flow.Values{"project_id": "tenant-42", "service_id": "not-a-uuid"})
	c.Assert(err, gc.ErrorMatches, ".*parse service_id.*")
	_, err = factory(flow.Values{"service_id": uuid.New().String()})
	c.Assert(err, gc.ErrorMatches, ".*project_id has not been provided.*")
}

func (s *ServiceFlowsTestSuite) runFlow(c *gc.C, factoryName string, kwargs flow.Values) (flow.Values, error) {
	factory, err := s.reg.Lookup(factoryName)
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
