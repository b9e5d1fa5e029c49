package cert

import (
	"context"
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/flow"
)

// Flow-factory references under which the certificate flows register
// themselves with a flow registry.
const (
	FactoryCreateSANCert   = "create_san_cert"
	FactoryModifySANCerts  = "modify_san_certs"
	FactoryCheckCertStatus = "check_cert_status"
)

const defaultActivationAttempts = 3

// Deps encapsulates the collaborators and settings for the certificate
// flows.
type Deps struct {
	// The provider SAN certificate pipeline driver.
	Backend SANBackend

	// The certificate record store.
	Storage Storage

	// The queue of pending SAN host add/remove requests.
	Queue HostRequestQueue

	// The poster used to enqueue follow-up status-check jobs.
	Poster JobPoster

	// The edge property that carries the SAN certificate hostnames.
	Property string

	// The attempt budget for the property activation call. Defaults to
	// 3 if not specified.
	ActivationAttempts int

	// The logger for flow operations. If not specified, log output is
	// discarded.
	Logger *logrus.Entry
}

func (d *Deps) validate() error {
	var err error
	if d.Backend == nil {
		err = multierror.Append(err, xerrors.New("san backend has not been provided"))
	}
	if d.Storage == nil {
		err = multierror.Append(err, xerrors.New("certificate storage has not been provided"))
	}
	if d.Queue == nil {
		err = multierror.Append(err, xerrors.New("host request queue has not been provided"))
	}
	if d.Poster == nil {
		err = multierror.Append(err, xerrors.New("job poster has not been provided"))
	}
	if d.Property == "" {
		err = multierror.Append(err, xerrors.New("edge property has not been provided"))
	}
	if d.ActivationAttempts == 0 {
		d.ActivationAttempts = defaultActivationAttempts
	}
	if d.Logger == nil {
		d.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Flows builds the certificate provisioning flows over a set of
// collaborators.
type Flows struct {
	deps Deps
}

// NewFlows creates a certificate flow builder with the specified deps.
func NewFlows(deps Deps) (*Flows, error) {
	if err := deps.validate(); err != nil {
		return nil, xerrors.Errorf("certificate flows: config validation failed: %w", err)
	}
	return &Flows{deps: deps}, nil
}

// Register installs the certificate flow factories into reg.
func (f *Flows) Register(reg *flow.Registry) error {
	for name, factory := range map[string]flow.Factory{
		FactoryCreateSANCert:   f.CreateSANCertFlow,
		FactoryModifySANCerts:  f.ModifySANCertsFlow,
		FactoryCheckCertStatus: f.CheckCertStatusFlow,
	} {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// CreateSANCertFlow builds the flow that issues a new SAN certificate. A
// single task records the certificate, submits the issuance request
// assembled from the operator-supplied contact fields (missing fields
// default to empty strings) and, on acceptance, enqueues a status-check
// job keyed by the provider's tracking ID. A rejected submission fails
// the flow outright; there is no partial state to revert.
func (f *Flows) CreateSANCertFlow(kwargs flow.Values) (flow.Atom, error) {
	projectID := stringArg(kwargs, "project_id")
	domain := stringArg(kwargs, "domain_name")
	flavor := stringArg(kwargs, "flavor_id")
	certType := Type(stringArg(kwargs, "cert_type"))
	if certType == "" {
		certType = TypeSAN
	}
	if !ValidType(certType) {
		return nil, xerrors.Errorf("certificate type %q: %w", certType, ErrInvalidType)
	}

	req := CertificateRequest{
		DomainName:   domain,
		FlavorID:     flavor,
		ContactEmail: stringArg(kwargs, "contact_email"),
		ContactName:  stringArg(kwargs, "contact_name"),
		ContactPhone: stringArg(kwargs, "contact_phone"),
		Organization: stringArg(kwargs, "organization"),
		AddressLine:  stringArg(kwargs, "address_line"),
		City:         stringArg(kwargs, "city"),
		Region:       stringArg(kwargs, "region"),
		Country:      stringArg(kwargs, "country"),
	}

	deps := f.deps
	issue := flow.NewTask(flow.TaskSpec{
		Name:     "issue-san-cert",
		Provides: []string{"cert_tracking_id"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			cert := &SSLCertificate{
				ProjectID:  projectID,
				FlavorID:   flavor,
				DomainName: domain,
				CertType:   certType,
			}
			err := deps.Storage.CreateCertificate(ctx, cert)
			if xerrors.Is(err, ErrDuplicateCert) {
				// Caller error; retrying on another conductor cannot
				// help.
				return nil, err
			} else if err != nil {
				return nil, flow.StorageFailure(xerrors.Errorf("create certificate for %q: %w", domain, err))
			}

			trackingID, err := deps.Backend.IssueCertificate(ctx, req)
			if err != nil {
				return nil, xerrors.Errorf("issue san certificate for %q: %w", domain, err)
			}

			details := map[string]Detail{
				deps.Backend.Name(): {ExtraInfo: map[string]interface{}{
					"status":               string(StatusCreateInProgress),
					"san_cert_tracking_id": trackingID,
				}},
			}
			if err := deps.Storage.UpdateCertDetails(ctx, projectID, domain, flavor, certType, details); err != nil {
				return nil, flow.StorageFailure(xerrors.Errorf("record tracking id for %q: %w", domain, err))
			}

			if err := deps.postStatusCheck(ctx, projectID, domain, flavor, certType, trackingID); err != nil {
				return nil, err
			}
			return flow.Values{"cert_tracking_id": trackingID}, nil
		},
	})
	return flow.NewLinearFlow("create-san-cert", issue), nil
}

// ModifySANCertsFlow builds the flow that reconciles the hostname set on
// the shared SAN certificate. The first task drains all queued add/remove
// host requests and computes the resulting host changes; the second
// submits the modification and enqueues a status check. If either task
// fails, the drained requests are pushed back onto the queue by the first
// task's revert so no host request is lost.
func (f *Flows) ModifySANCertsFlow(kwargs flow.Values) (flow.Atom, error) {
	projectID := stringArg(kwargs, "project_id")
	domain := stringArg(kwargs, "domain_name")
	flavor := stringArg(kwargs, "flavor_id")

	deps := f.deps
	var drained []HostRequest
	gather := flow.NewTask(flow.TaskSpec{
		Name:     "gather-host-requests",
		Provides: []string{"add_hosts", "remove_hosts"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			var err error
			drained, err = deps.Queue.DrainAll(ctx)
			if err != nil {
				return nil, flow.ExecutionFailure(xerrors.Errorf("drain host request queue: %w", err))
			}
			addHosts, removeHosts := resolveHostRequests(drained)
			return flow.Values{"add_hosts": addHosts, "remove_hosts": removeHosts}, nil
		},
		Revert: func(ctx context.Context, _ flow.Values, _ flow.Values) error {
			if len(drained) == 0 {
				return nil
			}
			return deps.Queue.Requeue(ctx, drained)
		},
	})

	modify := flow.NewTask(flow.TaskSpec{
		Name:     "modify-san-hosts",
		Requires: []string{"add_hosts", "remove_hosts"},
		Provides: []string{"cert_tracking_id"},
		Execute: func(ctx context.Context, inputs flow.Values) (flow.Values, error) {
			addHosts := stringsArg(inputs, "add_hosts")
			removeHosts := stringsArg(inputs, "remove_hosts")
			if len(addHosts) == 0 && len(removeHosts) == 0 {
				return flow.Values{"cert_tracking_id": ""}, nil
			}

			trackingID, err := deps.Backend.ModifySANHosts(ctx, addHosts, removeHosts)
			if err != nil {
				return nil, flow.ExecutionFailure(xerrors.Errorf("modify san hosts: %w", err))
			}
			if err := deps.postStatusCheck(ctx, projectID, domain, flavor, TypeSAN, trackingID); err != nil {
				return nil, err
			}
			return flow.Values{"cert_tracking_id": trackingID}, nil
		},
	})
	return flow.NewLinearFlow("modify-san-certs", gather, modify), nil
}

// CheckCertStatusFlow builds the graph flow that drives the provider's
// activation pipeline for an in-flight certificate: a property-version
// update must complete and bind its result before the dependent,
// retry-wrapped activation task runs; a final task reads the issuance
// status, persists it and re-enqueues the check while the certificate is
// still in progress.
func (f *Flows) CheckCertStatusFlow(kwargs flow.Values) (flow.Atom, error) {
	projectID := stringArg(kwargs, "project_id")
	domain := stringArg(kwargs, "domain_name")
	flavor := stringArg(kwargs, "flavor_id")
	certType := Type(stringArg(kwargs, "cert_type"))
	if certType == "" {
		certType = TypeSAN
	}
	trackingID := stringArg(kwargs, "tracking_id")
	if trackingID == "" {
		return nil, xerrors.New("check cert status: tracking_id must be specified")
	}

	deps := f.deps
	updateVersion := flow.NewTask(flow.TaskSpec{
		Name:     "update-property-version",
		Provides: []string{"property_version"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			version, err := deps.Backend.UpdatePropertyVersion(ctx, deps.Property)
			if err != nil {
				return nil, flow.ExecutionFailure(xerrors.Errorf("update property version for %q: %w", deps.Property, err))
			}
			return flow.Values{"property_version": version}, nil
		},
	})

	activate := flow.NewTask(flow.TaskSpec{
		Name:     "activate-property-version",
		Requires: []string{"property_version"},
		Provides: []string{"activation_id"},
		Execute: func(ctx context.Context, inputs flow.Values) (flow.Values, error) {
			version := intArg(inputs, "property_version")
			res, err := deps.Backend.ActivatePropertyVersion(ctx, deps.Property, version, nil)
			if err != nil {
				return nil, flow.ExecutionFailure(xerrors.Errorf("activate property version %d: %w", version, err))
			}
			if len(res.Warnings) > 0 {
				// The provider wants the warnings acknowledged; repeat
				// the activation with the acks attached.
				res, err = deps.Backend.ActivatePropertyVersion(ctx, deps.Property, version, res.Warnings)
				if err != nil {
					return nil, flow.ExecutionFailure(xerrors.Errorf("acknowledge activation warnings for version %d: %w", version, err))
				}
			}
			return flow.Values{"activation_id": res.ActivationID}, nil
		},
	})

	updateStatus := flow.NewTask(flow.TaskSpec{
		Name:     "update-cert-status",
		Requires: []string{"activation_id"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			status, err := deps.Backend.CertificateStatus(ctx, trackingID)
			if err != nil {
				return nil, flow.ExecutionFailure(xerrors.Errorf("certificate status for tracking id %q: %w", trackingID, err))
			}

			details := map[string]Detail{
				deps.Backend.Name(): {ExtraInfo: map[string]interface{}{
					"status":               string(status),
					"san_cert_tracking_id": trackingID,
				}},
			}
			if err := deps.Storage.UpdateCertDetails(ctx, projectID, domain, flavor, certType, details); err != nil {
				return nil, flow.StorageFailure(xerrors.Errorf("record status for %q: %w", domain, err))
			}

			if status == StatusCreateInProgress {
				// Not terminal yet; schedule another check.
				if err := deps.postStatusCheck(ctx, projectID, domain, flavor, certType, trackingID); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	})

	return flow.NewGraphFlow("check-cert-status",
		updateStatus,
		flow.NewRetry("activate-property", deps.ActivationAttempts, activate),
		updateVersion,
	), nil
}

func (d *Deps) postStatusCheck(ctx context.Context, projectID, domain, flavor string, certType Type, trackingID string) error {
	err := d.Poster.PostJob(ctx, "check-cert-status", FactoryCheckCertStatus, map[string]interface{}{
		"project_id":  projectID,
		"domain_name": domain,
		"flavor_id":   flavor,
		"cert_type":   string(certType),
		"tracking_id": trackingID,
	})
	if err != nil {
		return flow.ExecutionFailure(xerrors.Errorf("post status-check job for %q: %w", domain, err))
	}
	return nil
}

// resolveHostRequests folds the drained queue into the host sets the
// shared certificate must gain and lose. When the same hostname appears
// multiple times, the last queued action wins.
func resolveHostRequests(reqs []HostRequest) ([]string, []string) {
	final := make(map[string]HostRequestAction, len(reqs))
	order := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if _, seen := final[req.Hostname]; !seen {
			order = append(order, req.Hostname)
		}
		final[req.Hostname] = req.Action
	}

	var addHosts, removeHosts []string
	for _, host := range order {
		switch final[host] {
		case ActionAddHost:
			addHosts = append(addHosts, host)
		case ActionRemoveHost:
			removeHosts = append(removeHosts, host)
		}
	}
	return addHosts, removeHosts
}

func stringArg(kwargs flow.Values, key string) string {
	s, _ := kwargs[key].(string)
	return s
}

func stringsArg(kwargs flow.Values, key string) []string {
	switch v := kwargs[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intArg(kwargs flow.Values, key string) int {
	switch v := kwargs[key].(type) {
	case int:
		return v
	case float64:
		// Values that round-tripped through JSON decode as float64.
		return int(v)
	}
	return 0
}
