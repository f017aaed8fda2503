package event

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
)

type (
	// Recorder appends audit events. Recording is best-effort: a validation or
	// database failure is logged and swallowed so it can never abort the state
	// transition it describes.
	Recorder interface {
		Record(eventType Type, actor Actor, entityId string, metadata map[string]any)
		GetForInstance(ctx context.Context, instanceId string, limit int) ([]EventOut, error)
	}

	eventRecorder struct {
		repository Repository
		schemas    map[Type]*gojsonschema.Schema
	}
)

const instanceEntityType = "instance"

func CreateRecorder(repository Repository) Recorder {
	return &eventRecorder{
		repository: repository,
		schemas:    compileSchemas(),
	}
}

func (r *eventRecorder) Record(eventType Type, actor Actor, entityId string, metadata map[string]any) {
	schema, known := r.schemas[eventType]
	if !known {
		log.Warnf("[EVENT] Dropping event of unknown type '%s'", eventType)
		return
	}

	if metadata == nil {
		metadata = map[string]any{}
	}

	validation, err := schema.Validate(gojsonschema.NewGoLoader(metadata))
	if err != nil || !validation.Valid() {
		log.Warnf("[EVENT] Dropping metadata of event '%s': failed schema validation", eventType)
		metadata = map[string]any{}
	}

	serialized, err := json.Marshal(metadata)
	if err != nil {
		serialized = ([]byte)("{}")
	}

	newEvent := &Event{
		Type:       eventType,
		ActorType:  actor.Type,
		ActorId:    actor.Id,
		EntityType: instanceEntityType,
		EntityId:   entityId,
		Metadata:   string(serialized),
	}

	if err := r.repository.Create(context.Background(), newEvent); err != nil {
		log.Warnf("[EVENT] Failed to record event '%s' for instance %s", eventType, entityId)
	}
}

func (r *eventRecorder) GetForInstance(ctx context.Context, instanceId string, limit int) ([]EventOut, error) {
	events, err := r.repository.GetByEntity(ctx, instanceEntityType, instanceId, limit)
	if err != nil {
		return nil, err
	}

	return lo.Map(events, func(item Event, _ int) EventOut {
		var metadata map[string]any
		_ = json.Unmarshal(([]byte)(item.Metadata), &metadata)

		return EventOut{
			Timestamp: item.CreatedAt,
			Type:      item.Type,
			ActorType: item.ActorType,
			ActorId:   item.ActorId,
			Metadata:  metadata,
		}
	}), nil
}
