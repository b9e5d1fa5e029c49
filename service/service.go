// Package service provides the supervisor used to run the long-lived
// components of a poppy deployment (conductors, listeners) as a group.
package service

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"
)

// Service describes a long-running component of a poppy process.
type Service interface {
	// Name returns the service name.
	Name() string

	// Run executes the service and blocks until the context gets
	// cancelled or an error occurs.
	Run(context.Context) error
}

// Group is a list of Service instances that execute in parallel.
type Group []Service

// Run executes every service in the group until the context is cancelled,
// one of them fails, or all of them return on their own. The first failure
// cancels the rest of the group. Run returns once every service has
// stopped, with the failures accumulated in group order.
func (g Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var wg sync.WaitGroup
	results := make([]error, len(g))
	wg.Add(len(g))
	for i, s := range g {
		go func(i int, s Service) {
			defer wg.Done()
			if err := s.Run(runCtx); err != nil {
				results[i] = xerrors.Errorf("%s: %w", s.Name(), err)
				cancelFn()
			}
		}(i, s)
	}
	wg.Wait()

	var err error
	for _, svcErr := range results {
		if svcErr != nil {
			err = multierror.Append(err, svcErr)
		}
	}
	return err
}
