// Package mock implements provider and DNS adapters that simulate a CDN
// vendor. The adapters succeed by default and can be programmed to fail
// particular operations, which makes them suitable both for development
// deployments and for exercising partial-failure handling in tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/openstack-archive/poppy-sub002/cdn"
)

// Compile-time checks for ensuring the mock adapters implement the
// adapter contracts.
var (
	_ cdn.ProviderAdapter = (*Provider)(nil)
	_ cdn.DNSAdapter      = (*DNS)(nil)
)

// Provider simulates a CDN vendor. Each operation succeeds unless a
// failure has been programmed for it via FailWith.
type Provider struct {
	name string

	mu       sync.Mutex
	failures map[string]string
	deployed map[string]cdn.ProviderDetail
}

// NewProvider creates a mock provider adapter with the specified name.
func NewProvider(name string) *Provider {
	return &Provider{
		name:     name,
		failures: make(map[string]string),
		deployed: make(map[string]cdn.ProviderDetail),
	}
}

// FailWith programs the named operation (one of "create", "update",
// "delete", "purge") to fail with errMsg. An empty errMsg clears the
// programmed failure.
func (p *Provider) FailWith(op, errMsg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errMsg == "" {
		delete(p.failures, op)
		return
	}
	p.failures[op] = errMsg
}

// DeployedCount returns the number of services currently deployed on the
// mock edge network.
func (p *Provider) DeployedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.deployed)
}

// Name implements cdn.ProviderAdapter.
func (p *Provider) Name() string { return p.name }

// CreateService implements cdn.ProviderAdapter.
func (p *Provider) CreateService(_ context.Context, svc *cdn.ServiceDetails) cdn.Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errMsg, exists := p.failures["create"]; exists {
		return cdn.FailedResponder(p.name, "failed to create service", errMsg)
	}
	id := fmt.Sprintf("%s-%s", p.name, svc.ServiceID)
	links := p.accessLinks(svc)
	p.deployed[id] = cdn.ProviderDetail{ID: id, AccessURLs: links, Status: cdn.StatusDeployed}
	return cdn.Responder{Provider: p.name, ID: id, Links: links}
}

// UpdateService implements cdn.ProviderAdapter.
func (p *Provider) UpdateService(_ context.Context, old, updated *cdn.ServiceDetails) cdn.Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errMsg, exists := p.failures["update"]; exists {
		return cdn.FailedResponder(p.name, "failed to update service", errMsg)
	}
	id := fmt.Sprintf("%s-%s", p.name, updated.ServiceID)
	links := p.accessLinks(updated)
	p.deployed[id] = cdn.ProviderDetail{ID: id, AccessURLs: links, Status: cdn.StatusDeployed}
	return cdn.Responder{Provider: p.name, ID: id, Links: links}
}

// DeleteService implements cdn.ProviderAdapter.
func (p *Provider) DeleteService(_ context.Context, detail cdn.ProviderDetail) cdn.Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errMsg, exists := p.failures["delete"]; exists {
		return cdn.FailedResponder(p.name, "failed to delete service", errMsg)
	}
	delete(p.deployed, detail.ID)
	return cdn.Responder{Provider: p.name, ID: detail.ID}
}

// Purge implements cdn.ProviderAdapter.
func (p *Provider) Purge(_ context.Context, detail cdn.ProviderDetail, _ string) cdn.Responder {
	p.mu.Lock()
	defer p.mu.Unlock()
	if errMsg, exists := p.failures["purge"]; exists {
		return cdn.FailedResponder(p.name, "failed to purge service", errMsg)
	}
	return cdn.Responder{Provider: p.name, ID: detail.ID}
}

func (p *Provider) accessLinks(svc *cdn.ServiceDetails) []cdn.Link {
	links := make([]cdn.Link, 0, len(svc.Domains))
	for _, domain := range svc.Domains {
		links = append(links, cdn.Link{
			Href: fmt.Sprintf("%s.%s.mockcdn.net", domain.Name, p.name),
			Rel:  "access_url",
		})
	}
	return links
}

// DNS simulates a DNS backend that maps customer domains onto provider
// access URLs via CNAME-like chaining records.
type DNS struct {
	mu       sync.Mutex
	failures map[string]string
}

// NewDNS creates a mock DNS adapter.
func NewDNS() *DNS {
	return &DNS{failures: make(map[string]string)}
}

// FailWith programs the named operation (one of "create", "update",
// "delete") to fail with errMsg. An empty errMsg clears the programmed
// failure.
func (d *DNS) FailWith(op, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if errMsg == "" {
		delete(d.failures, op)
		return
	}
	d.failures[op] = errMsg
}

// CreateRecords implements cdn.DNSAdapter.
func (d *DNS) CreateRecords(_ context.Context, svc *cdn.ServiceDetails, responders []cdn.Responder) map[string]cdn.Responder {
	return d.chainRecords("create", svc, responders)
}

// UpdateRecords implements cdn.DNSAdapter.
func (d *DNS) UpdateRecords(_ context.Context, _, updated *cdn.ServiceDetails, responders []cdn.Responder) map[string]cdn.Responder {
	return d.chainRecords("update", updated, responders)
}

// DeleteRecords implements cdn.DNSAdapter.
func (d *DNS) DeleteRecords(_ context.Context, _ *cdn.ServiceDetails, details map[string]cdn.ProviderDetail) map[string]cdn.Responder {
	d.mu.Lock()
	errMsg, failed := d.failures["delete"]
	d.mu.Unlock()
	out := make(map[string]cdn.Responder, len(details))
	for name := range details {
		if failed {
			out[name] = cdn.FailedResponder(name, "failed to delete dns records", errMsg)
			continue
		}
		out[name] = cdn.Responder{Provider: name}
	}
	return out
}

func (d *DNS) chainRecords(op string, svc *cdn.ServiceDetails, responders []cdn.Responder) map[string]cdn.Responder {
	d.mu.Lock()
	errMsg, failed := d.failures[op]
	d.mu.Unlock()
	out := make(map[string]cdn.Responder, len(responders))
	for _, res := range responders {
		if failed {
			out[res.Provider] = cdn.FailedResponder(res.Provider, fmt.Sprintf("failed to %s dns records", op), errMsg)
			continue
		}
		links := make([]cdn.Link, 0, len(svc.Domains))
		for _, domain := range svc.Domains {
			links = append(links, cdn.Link{
				Href: fmt.Sprintf("%s.cdn%s.mockdns.net", domain.Name, shard(svc.ServiceID)),
				Rel:  "access_url",
			})
		}
		out[res.Provider] = cdn.Responder{Provider: res.Provider, ID: res.ID, Links: links}
	}
	return out
}

// shard picks a stable DNS shard suffix for a service.
func shard(id uuid.UUID) string {
	return fmt.Sprintf("%d", int(id[0])%4)
}
