package cdn

import (
	"context"
	"io/ioutil"
	"sort"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/flow"
)

// Config encapsulates the settings for an Orchestrator instance.
type Config struct {
	// The set of provider adapters to fan service operations out to,
	// keyed by provider name.
	Providers map[string]ProviderAdapter

	// The DNS adapter that maps customer domains to provider access
	// URLs.
	DNS DNSAdapter

	// The central store for service records.
	Storage StorageAdapter

	// The logger for orchestrator operations. If not specified, log
	// output is discarded.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if len(cfg.Providers) == 0 {
		err = multierror.Append(err, xerrors.New("at least one provider adapter has not been provided"))
	}
	for name, adapter := range cfg.Providers {
		if adapter == nil {
			err = multierror.Append(err, xerrors.Errorf("provider adapter %q has not been provided", name))
		}
	}
	if cfg.DNS == nil {
		err = multierror.Append(err, xerrors.New("dns adapter has not been provided"))
	}
	if cfg.Storage == nil {
		err = multierror.Append(err, xerrors.New("storage adapter has not been provided"))
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Orchestrator fans service lifecycle operations out to every configured
// provider adapter, merges the per-provider outcomes with the DNS
// outcomes and persists the result. Partial failures never abort the
// fan-out: each failure is captured into the failing provider's entry in
// the service's provider-detail map and every other provider proceeds
// independently.
type Orchestrator struct {
	cfg Config
}

// NewOrchestrator creates a new orchestrator instance with the specified
// config.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("orchestrator: config validation failed: %w", err)
	}
	return &Orchestrator{cfg: cfg}, nil
}

// CreateService provisions svc on every configured provider, wires up the
// DNS mappings for the successful ones and persists the merged outcome.
// The returned record carries one provider-detail entry per provider;
// entries for failed providers carry the failure description. A non-nil
// error indicates a storage failure only.
func (o *Orchestrator) CreateService(ctx context.Context, svc *ServiceDetails) (*ServiceDetails, error) {
	svc = svc.Clone()
	svc.Status = StatusCreateInProgress

	responders := make([]Responder, 0, len(o.cfg.Providers))
	for _, name := range o.providerNames() {
		res := o.cfg.Providers[name].CreateService(ctx, svc)
		res.Provider = name
		if res.Failed() {
			o.cfg.Logger.WithFields(logrus.Fields{
				"project_id": svc.ProjectID,
				"service_id": svc.ServiceID,
				"provider":   name,
				"err":        res.ErrorInfo(),
			}).Error("provider create failed")
		}
		responders = append(responders, res)
	}

	dnsResults := o.cfg.DNS.CreateRecords(ctx, svc, succeeded(responders))

	svc.ProviderDetails = make(map[string]ProviderDetail, len(responders))
	failures := 0
	for _, res := range responders {
		detail, failed := mergeOutcome(res, dnsResults[res.Provider])
		if failed {
			failures++
		}
		svc.ProviderDetails[res.Provider] = detail
	}

	if failures == 0 {
		svc.Status = StatusDeployed
	} else {
		svc.Status = StatusFailed
	}
	if err := o.cfg.Storage.UpdateService(ctx, svc); err != nil {
		return nil, flow.StorageFailure(xerrors.Errorf("create service %s: %w", svc.ServiceID, err))
	}
	return svc, nil
}

// UpdateService reconfigures the service identified by projectID and
// serviceID so that it matches updated, fanning the change out to every
// configured provider. Providers that fail retain their old detail entry
// annotated with the failure description; the service converges to
// deployed only when every provider accepted the update.
func (o *Orchestrator) UpdateService(ctx context.Context, projectID string, serviceID uuid.UUID, updated *ServiceDetails) (*ServiceDetails, error) {
	old, err := o.cfg.Storage.GetService(ctx, projectID, serviceID)
	if err != nil {
		return nil, flow.StorageFailure(xerrors.Errorf("update service %s: %w", serviceID, err))
	}

	updated = updated.Clone()
	updated.ProjectID = projectID
	updated.ServiceID = serviceID
	updated.Status = StatusUpdateInProgress

	responders := make([]Responder, 0, len(o.cfg.Providers))
	for _, name := range o.providerNames() {
		res := o.cfg.Providers[name].UpdateService(ctx, old, updated)
		res.Provider = name
		responders = append(responders, res)
	}

	dnsResults := o.cfg.DNS.UpdateRecords(ctx, old, updated, succeeded(responders))

	updated.ProviderDetails = make(map[string]ProviderDetail, len(responders))
	failures := 0
	for _, res := range responders {
		detail, failed := mergeOutcome(res, dnsResults[res.Provider])
		if failed {
			failures++
			// Keep the pre-update deployment reachable under its old
			// identifiers until the provider accepts the change.
			if oldDetail, exists := old.ProviderDetails[res.Provider]; exists {
				detail.ID = oldDetail.ID
				detail.AccessURLs = append([]Link(nil), oldDetail.AccessURLs...)
			}
			o.cfg.Logger.WithFields(logrus.Fields{
				"project_id": projectID,
				"service_id": serviceID,
				"provider":   res.Provider,
				"err":        detail.ErrorInfo,
			}).Error("provider update failed")
		}
		updated.ProviderDetails[res.Provider] = detail
	}

	if failures == 0 {
		updated.Status = StatusDeployed
	} else {
		updated.Status = StatusFailed
	}
	if err := o.cfg.Storage.UpdateService(ctx, updated); err != nil {
		return nil, flow.StorageFailure(xerrors.Errorf("update service %s: %w", serviceID, err))
	}
	return updated, nil
}

// DeleteService tears the service down on every provider that still has a
// detail entry for it. Entries whose provider and DNS teardown both
// succeed are dropped; failing entries are retained with the failure
// description so a later retry only re-touches the providers that
// actually failed. The service record itself is deleted from storage only
// once no entries remain.
func (o *Orchestrator) DeleteService(ctx context.Context, projectID string, serviceID uuid.UUID) error {
	svc, err := o.cfg.Storage.GetService(ctx, projectID, serviceID)
	if xerrors.Is(err, ErrServiceNotFound) {
		// Already gone; deleting twice is not an error.
		return nil
	} else if err != nil {
		return flow.StorageFailure(xerrors.Errorf("delete service %s: %w", serviceID, err))
	}

	dnsResults := o.cfg.DNS.DeleteRecords(ctx, svc, svc.ProviderDetails)

	remaining := make(map[string]ProviderDetail)
	for _, name := range detailNames(svc.ProviderDetails) {
		detail := svc.ProviderDetails[name]
		res := o.deleteOnProvider(ctx, name, detail)
		if dnsRes, exists := dnsResults[name]; exists && dnsRes.Failed() && !res.Failed() {
			res = dnsRes
		}
		if !res.Failed() {
			continue
		}
		o.cfg.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"service_id": serviceID,
			"provider":   name,
			"err":        res.ErrorInfo(),
		}).Error("provider delete failed")
		detail.Status = StatusFailed
		detail.ErrorInfo = res.ErrorInfo()
		remaining[name] = detail
	}

	if len(remaining) == 0 {
		if err := o.cfg.Storage.DeleteService(ctx, projectID, serviceID); err != nil {
			return flow.StorageFailure(xerrors.Errorf("delete service %s: %w", serviceID, err))
		}
		return nil
	}
	if err := o.cfg.Storage.UpdateProviderDetails(ctx, projectID, serviceID, remaining); err != nil {
		return flow.StorageFailure(xerrors.Errorf("delete service %s: %w", serviceID, err))
	}
	return nil
}

func (o *Orchestrator) deleteOnProvider(ctx context.Context, name string, detail ProviderDetail) Responder {
	adapter, exists := o.cfg.Providers[name]
	if !exists {
		return FailedResponder(name, "no adapter configured for provider", name)
	}
	res := adapter.DeleteService(ctx, detail)
	res.Provider = name
	return res
}

// Purge invalidates cached content for the service on every provider that
// has a detail entry. An empty purgeURL requests a full purge. Failures
// are annotated onto the corresponding entries and persisted; entries for
// providers whose purge succeeded are left untouched.
func (o *Orchestrator) Purge(ctx context.Context, projectID string, serviceID uuid.UUID, purgeURL string) error {
	svc, err := o.cfg.Storage.GetService(ctx, projectID, serviceID)
	if err != nil {
		return flow.StorageFailure(xerrors.Errorf("purge service %s: %w", serviceID, err))
	}

	dirty := false
	for _, name := range detailNames(svc.ProviderDetails) {
		detail := svc.ProviderDetails[name]
		res := o.purgeOnProvider(ctx, name, detail, purgeURL)
		if !res.Failed() {
			continue
		}
		o.cfg.Logger.WithFields(logrus.Fields{
			"project_id": projectID,
			"service_id": serviceID,
			"provider":   name,
			"err":        res.ErrorInfo(),
		}).Error("provider purge failed")
		detail.Status = StatusFailed
		detail.ErrorInfo = res.ErrorInfo()
		svc.ProviderDetails[name] = detail
		dirty = true
	}

	if !dirty {
		return nil
	}
	if err := o.cfg.Storage.UpdateProviderDetails(ctx, projectID, serviceID, svc.ProviderDetails); err != nil {
		return flow.StorageFailure(xerrors.Errorf("purge service %s: %w", serviceID, err))
	}
	return nil
}

// purgeOnProvider mirrors deleteOnProvider: an entry for a provider with
// no configured adapter is a failure the operator must see, not a skip.
func (o *Orchestrator) purgeOnProvider(ctx context.Context, name string, detail ProviderDetail, purgeURL string) Responder {
	adapter, exists := o.cfg.Providers[name]
	if !exists {
		return FailedResponder(name, "no adapter configured for provider", name)
	}
	res := adapter.Purge(ctx, detail, purgeURL)
	res.Provider = name
	return res
}

// providerNames returns the configured provider names in stable order.
func (o *Orchestrator) providerNames() []string {
	names := make([]string, 0, len(o.cfg.Providers))
	for name := range o.cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func detailNames(details map[string]ProviderDetail) []string {
	names := make([]string, 0, len(details))
	for name := range details {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func succeeded(responders []Responder) []Responder {
	out := make([]Responder, 0, len(responders))
	for _, res := range responders {
		if !res.Failed() {
			out = append(out, res)
		}
	}
	return out
}

// mergeOutcome folds a provider responder and the matching DNS responder
// into a single provider-detail entry.
func mergeOutcome(res, dnsRes Responder) (ProviderDetail, bool) {
	if res.Failed() {
		return ProviderDetail{Status: StatusFailed, ErrorInfo: res.ErrorInfo()}, true
	}
	if dnsRes.Failed() {
		return ProviderDetail{ID: res.ID, Status: StatusFailed, ErrorInfo: dnsRes.ErrorInfo()}, true
	}
	links := dnsRes.Links
	if len(links) == 0 {
		links = res.Links
	}
	return ProviderDetail{
		ID:         res.ID,
		AccessURLs: append([]Link(nil), links...),
		Status:     StatusDeployed,
	}, false
}
