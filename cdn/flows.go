package cdn

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/openstack-archive/poppy-sub002/flow"
)

// Flow-factory references under which the service lifecycle flows
// register themselves with a flow registry.
const (
	FactoryCreateService = "create_service"
	FactoryUpdateService = "update_service"
	FactoryDeleteService = "delete_service"
	FactoryPurgeService  = "purge_service"
)

// RegisterFlows installs flow factories for the orchestrator's service
// lifecycle operations into reg. Each flow is a single task delegating to
// the corresponding orchestrator entry point; partial provider failures
// are recorded in the service's provider details and do not fail the
// flow.
func (o *Orchestrator) RegisterFlows(reg *flow.Registry) error {
	for name, factory := range map[string]flow.Factory{
		FactoryCreateService: o.createServiceFlow,
		FactoryUpdateService: o.updateServiceFlow,
		FactoryDeleteService: o.deleteServiceFlow,
		FactoryPurgeService:  o.purgeServiceFlow,
	} {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) createServiceFlow(kwargs flow.Values) (flow.Atom, error) {
	svc, err := serviceArg(kwargs)
	if err != nil {
		return nil, err
	}
	task := flow.NewTask(flow.TaskSpec{
		Name:     "create-service",
		Provides: []string{"service_status"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			created, err := o.CreateService(ctx, svc)
			if err != nil {
				return nil, err
			}
			return flow.Values{"service_status": string(created.Status)}, nil
		},
	})
	return flow.NewLinearFlow("create-service", task), nil
}

func (o *Orchestrator) updateServiceFlow(kwargs flow.Values) (flow.Atom, error) {
	svc, err := serviceArg(kwargs)
	if err != nil {
		return nil, err
	}
	projectID, serviceID, err := serviceKeyArgs(kwargs)
	if err != nil {
		return nil, err
	}
	task := flow.NewTask(flow.TaskSpec{
		Name:     "update-service",
		Provides: []string{"service_status"},
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			updated, err := o.UpdateService(ctx, projectID, serviceID, svc)
			if err != nil {
				return nil, err
			}
			return flow.Values{"service_status": string(updated.Status)}, nil
		},
	})
	return flow.NewLinearFlow("update-service", task), nil
}

func (o *Orchestrator) deleteServiceFlow(kwargs flow.Values) (flow.Atom, error) {
	projectID, serviceID, err := serviceKeyArgs(kwargs)
	if err != nil {
		return nil, err
	}
	task := flow.NewTask(flow.TaskSpec{
		Name: "delete-service",
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			return nil, o.DeleteService(ctx, projectID, serviceID)
		},
	})
	return flow.NewLinearFlow("delete-service", task), nil
}

func (o *Orchestrator) purgeServiceFlow(kwargs flow.Values) (flow.Atom, error) {
	projectID, serviceID, err := serviceKeyArgs(kwargs)
	if err != nil {
		return nil, err
	}
	purgeURL, _ := kwargs["purge_url"].(string)
	task := flow.NewTask(flow.TaskSpec{
		Name: "purge-service",
		Execute: func(ctx context.Context, _ flow.Values) (flow.Values, error) {
			return nil, o.Purge(ctx, projectID, serviceID, purgeURL)
		},
	})
	return flow.NewLinearFlow("purge-service", task), nil
}

// serviceArg decodes the "service" kwarg into a service record. The value
// is round-tripped through JSON so that both typed records (direct
// submission) and generic maps (jobs restored from the board) are
// accepted.
func serviceArg(kwargs flow.Values) (*ServiceDetails, error) {
	raw, exists := kwargs["service"]
	if !exists {
		return nil, xerrors.New("service has not been provided")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, xerrors.Errorf("decode service: %w", err)
	}
	var svc ServiceDetails
	if err := json.Unmarshal(data, &svc); err != nil {
		return nil, xerrors.Errorf("decode service: %w", err)
	}
	return &svc, nil
}

func serviceKeyArgs(kwargs flow.Values) (string, uuid.UUID, error) {
	projectID, _ := kwargs["project_id"].(string)
	if projectID == "" {
		return "", uuid.Nil, xerrors.New("project_id has not been provided")
	}
	rawID, _ := kwargs["service_id"].(string)
	serviceID, err := uuid.Parse(rawID)
	if err != nil {
		return "", uuid.Nil, xerrors.Errorf("parse service_id: %w", err)
	}
	return projectID, serviceID, nil
}
