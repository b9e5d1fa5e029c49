package service

import (
	"context"
	"testing"
	"time"

	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(GroupTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type GroupTestSuite struct {
}

func (s *GroupTestSuite) TestGroupTerminatesWithOneError(c *gc.C) {
	grp := Group{
		stubService{id: "0"},
		stubService{id: "1", err: xerrors.Errorf("cannot reach coordination backend")},
		stubService{id: "2"},
	}

	err := grp.Run(context.TODO())
	c.Assert(err, gc.Not(gc.IsNil))
	c.Assert(err, gc.ErrorMatches, "(?ms).*1: cannot reach coordination backend.*")
}

func (s *GroupTestSuite) TestGroupTerminatesWithMultipleErrors(c *gc.C) {
	grp := Group{
		stubService{id: "0"},
		stubService{id: "1", err: xerrors.Errorf("cannot reach coordination backend")},
		stubService{id: "2", err: xerrors.Errorf("cannot reach coordination backend")},
	}

	err := grp.Run(context.TODO())
	c.Assert(err, gc.ErrorMatches, "(?ms).*1: cannot reach coordination backend.*")
	c.Assert(err, gc.ErrorMatches, "(?ms).*2: cannot reach coordination backend.*")
}

func (s *GroupTestSuite) TestGroupTerminatesFromContext(c *gc.C) {
	grp := Group{
		stubService{id: "0"},
		stubService{id: "1"},
		stubService{id: "2"},
	}

	ctx, cancelFn := context.WithTimeout(context.TODO(), 200*time.Millisecond)
	defer cancelFn()
	err := grp.Run(ctx)
	c.Assert(err, gc.IsNil)
}

func (s *GroupTestSuite) TestGroupReturnsWhenAllServicesExit(c *gc.C) {
	grp := Group{
		stubService{id: "0", oneShot: true},
		stubService{id: "1", oneShot: true},
	}

	doneCh := make(chan error, 1)
	go func() { doneCh <- grp.Run(context.TODO()) }()

	select {
	case err := <-doneCh:
		c.Assert(err, gc.IsNil)
	case <-time.After(5 * time.Second):
		c.Fatal("group did not return after all services exited")
	}
}

type stubService struct {
	id      string
	err     error
	oneShot bool
}

func (s stubService) Name() string { return s.id }
func (s stubService) Run(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}
	if s.oneShot {
		return nil
	}

	<-ctx.Done()
	return nil
}
