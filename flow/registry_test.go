package flow_test

import (
	"github.com/openstack-archive/poppy-sub002/flow"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(RegistryTestSuite))

type RegistryTestSuite struct{}

func (s *RegistryTestSuite) TestRegisterAndLookup(c *gc.C) {
	r := flow.NewRegistry()
	factory := func(_ flow.Values) (flow.Atom, error) {
		return flow.NewLinearFlow("noop"), nil
	}

	c.Assert(r.Register("create_service", factory), gc.IsNil)
	c.Assert(r.Register("create_service", factory), gc.ErrorMatches, ".*already registered")
	c.Assert(r.Register("", factory), gc.ErrorMatches, ".*empty name")

	got, err := r.Lookup("create_service")
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.NotNil)

	_, err = r.Lookup("purge_service")
	c.Assert(xerrors.Is(err, flow.ErrUnknownFactory), gc.Equals, true)

	c.Assert(r.Names(), gc.DeepEquals, []string{"create_service"})
}
