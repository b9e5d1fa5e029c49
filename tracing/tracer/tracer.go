// Package tracer creates the Jaeger tracers used by the conductor
// binaries.
package tracer

import (
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
)

// Provider creates Jaeger tracers configured from the standard Jaeger
// environment variables and tracks their closers. Callers must invoke
// Close before the process exits or buffered spans may be lost.
type Provider struct {
	mu      sync.Mutex
	closers []io.Closer
}

// Tracer obtains a new tracer reporting under serviceName.
func (p *Provider) Tracer(serviceName string) (opentracing.Tracer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, err
	}
	cfg.ServiceName = serviceName

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.closers = append(p.closers, closer)
	p.mu.Unlock()
	return tracer, nil
}

// Close flushes and closes every tracer created by this provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, closer := range p.closers {
		if cErr := closer.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}
	p.closers = nil
	return err
}
