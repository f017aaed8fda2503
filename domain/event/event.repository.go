package event

import (
	"agentboxBackend/utils"
	"context"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

type (
	Repository interface {
		Create(ctx context.Context, event *Event) error
		GetByEntity(ctx context.Context, entityType string, entityId string, limit int) ([]Event, error)
	}

	eventRepository struct {
		db *gorm.DB
	}
)

func CreateRepository(db *gorm.DB) Repository {
	return &eventRepository{
		db: db,
	}
}

func (r *eventRepository) Create(ctx context.Context, event *Event) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		log.Errorf("[DB] Failed to create event. Error: %s", err.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *eventRepository) GetByEntity(ctx context.Context, entityType string, entityId string, limit int) ([]Event, error) {
	var events []Event
	result := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityId).
		Order("id DESC").
		Limit(limit).
		Find(&events)

	if result.Error != nil {
		log.Errorf("[DB] Failed to fetch events. Error: %s", result.Error.Error())
		return nil, utils.ErrorDatabaseError
	}

	return events, nil
}
