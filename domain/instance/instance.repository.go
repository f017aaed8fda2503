package instance

import (
	"agentboxBackend/utils"
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

type (
	Repository interface {
		Create(ctx context.Context, instance *Instance) error
		GetById(ctx context.Context, id int64) (*Instance, error)
		GetAll(ctx context.Context, ownerWallet *string) ([]Instance, error)
		GetExpiringWithin(ctx context.Context, ownerWallet *string, days uint) ([]Instance, error)
		GetExpired(ctx context.Context, now time.Time) ([]Instance, error)
		GetByCallbackToken(ctx context.Context, id int64, token string) (*Instance, error)
		GetByNftMint(ctx context.Context, mint string) (*Instance, error)
		NameTaken(ctx context.Context, name string) (bool, error)
		Update(ctx context.Context, instance *Instance) error
		Delete(ctx context.Context, instance *Instance) error

		// UpdateStep advances the provisioning sub-state, conditioned on the
		// row still being in provisioning with exactly this callback token.
		// Returns false if no row matched.
		UpdateStep(ctx context.Context, id int64, token string, step ProvisioningStep) (bool, error)

		// ConsumeCallback performs the single compare-and-swap that consumes
		// the callback token: provisioning -> minting, token cleared, VM
		// wallet and gateway token recorded. Returns false if no row matched.
		ConsumeCallback(ctx context.Context, id int64, token string, vmWallet string, gatewayToken string) (bool, error)

		// BeginMint atomically gates a mint retry: the transition to minting
		// only happens if no mint is in flight and none has succeeded yet.
		BeginMint(ctx context.Context, id int64) (bool, error)

		// FinishMint moves a minting row to running, recording the mint
		// address if one was produced.
		FinishMint(ctx context.Context, id int64, mint *string) error

		SetStatus(ctx context.Context, id int64, status Status) error
		UpdateOwnership(ctx context.Context, id int64, ownerWallet string, mint string) error
	}

	instanceRepository struct {
		db *gorm.DB
	}
)

func CreateRepository(db *gorm.DB) Repository {
	return &instanceRepository{
		db: db,
	}
}

func (r *instanceRepository) Create(ctx context.Context, instance *Instance) error {
	if err := r.db.WithContext(ctx).Create(instance).Error; err != nil {
		log.Errorf("[DB] Failed to create instance. Error: %s", err.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *instanceRepository) GetById(ctx context.Context, id int64) (*Instance, error) {
	instance := &Instance{}
	result := r.db.WithContext(ctx).Where("id = ?", id).First(instance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorInstanceNotFound
	}
	if result.Error != nil {
		log.Errorf("[DB] Failed to fetch instance by id. Error: %s", result.Error.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instance, nil
}

func (r *instanceRepository) GetAll(ctx context.Context, ownerWallet *string) ([]Instance, error) {
	var instances []Instance
	query := r.db.WithContext(ctx).Order("created_at DESC")

	if ownerWallet != nil {
		query = query.Where("owner_wallet = ?", *ownerWallet)
	}

	if err := query.Find(&instances).Error; err != nil {
		log.Errorf("[DB] Failed to fetch instances. Error: %s", err.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instances, nil
}

func (r *instanceRepository) GetExpiringWithin(ctx context.Context, ownerWallet *string, days uint) ([]Instance, error) {
	var instances []Instance
	cutoff := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	query := r.db.WithContext(ctx).
		Where("expires_at <= ?", cutoff).
		Order("expires_at")

	if ownerWallet != nil {
		query = query.Where("owner_wallet = ?", *ownerWallet)
	}

	if err := query.Find(&instances).Error; err != nil {
		log.Errorf("[DB] Failed to fetch expiring instances. Error: %s", err.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instances, nil
}

func (r *instanceRepository) GetExpired(ctx context.Context, now time.Time) ([]Instance, error) {
	var instances []Instance
	result := r.db.WithContext(ctx).
		Where("expires_at <= ? AND status <> ?", now, StatusDeleted).
		Find(&instances)

	if result.Error != nil {
		log.Errorf("[DB] Failed to fetch expired instances. Error: %s", result.Error.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instances, nil
}

func (r *instanceRepository) GetByCallbackToken(ctx context.Context, id int64, token string) (*Instance, error) {
	instance := &Instance{}
	result := r.db.WithContext(ctx).
		Where("id = ? AND status = ? AND callback_token = ?", id, StatusProvisioning, token).
		First(instance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorInstanceNotFound
	}
	if result.Error != nil {
		log.Errorf("[DB] Failed to fetch instance by callback token. Error: %s", result.Error.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instance, nil
}

func (r *instanceRepository) GetByNftMint(ctx context.Context, mint string) (*Instance, error) {
	instance := &Instance{}
	result := r.db.WithContext(ctx).Where("nft_mint = ?", mint).First(instance)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorInstanceNotFound
	}
	if result.Error != nil {
		log.Errorf("[DB] Failed to fetch instance by mint. Error: %s", result.Error.Error())
		return nil, utils.ErrorDatabaseError
	}

	return instance, nil
}

// NameTaken only considers active rows: soft-deleted instances release their
// name for reuse.
func (r *instanceRepository) NameTaken(ctx context.Context, name string) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("name = ?", name).
		Count(&count)

	if result.Error != nil {
		log.Errorf("[DB] Failed to check name availability. Error: %s", result.Error.Error())
		return false, utils.ErrorDatabaseError
	}

	return count > 0, nil
}

func (r *instanceRepository) Update(ctx context.Context, instance *Instance) error {
	if err := r.db.WithContext(ctx).Save(instance).Error; err != nil {
		log.Errorf("[DB] Failed to update instance. Error: %s", err.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *instanceRepository) Delete(ctx context.Context, instance *Instance) error {
	if err := r.db.WithContext(ctx).Delete(instance).Error; err != nil {
		log.Errorf("[DB] Failed to delete instance. Error: %s", err.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *instanceRepository) UpdateStep(ctx context.Context, id int64, token string, step ProvisioningStep) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ? AND status = ? AND callback_token = ?", id, StatusProvisioning, token).
		Update("provisioning_step", step)

	if result.Error != nil {
		log.Errorf("[DB] Failed to update provisioning step. Error: %s", result.Error.Error())
		return false, utils.ErrorDatabaseError
	}

	return result.RowsAffected > 0, nil
}

func (r *instanceRepository) ConsumeCallback(ctx context.Context, id int64, token string, vmWallet string, gatewayToken string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ? AND status = ? AND callback_token = ?", id, StatusProvisioning, token).
		Updates(map[string]any{
			"status":            StatusMinting,
			"provisioning_step": nil,
			"callback_token":    nil,
			"vm_wallet":         vmWallet,
			"gateway_token":     gatewayToken,
		})

	if result.Error != nil {
		log.Errorf("[DB] Failed to consume callback token. Error: %s", result.Error.Error())
		return false, utils.ErrorDatabaseError
	}

	return result.RowsAffected > 0, nil
}

func (r *instanceRepository) BeginMint(ctx context.Context, id int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ? AND status <> ? AND nft_mint IS NULL AND vm_wallet IS NOT NULL", id, StatusMinting).
		Update("status", StatusMinting)

	if result.Error != nil {
		log.Errorf("[DB] Failed to begin mint. Error: %s", result.Error.Error())
		return false, utils.ErrorDatabaseError
	}

	return result.RowsAffected > 0, nil
}

func (r *instanceRepository) FinishMint(ctx context.Context, id int64, mint *string) error {
	updates := map[string]any{"status": StatusRunning}
	if mint != nil {
		updates["nft_mint"] = *mint
	}

	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ? AND status = ?", id, StatusMinting).
		Updates(updates)

	if result.Error != nil {
		log.Errorf("[DB] Failed to finish mint. Error: %s", result.Error.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *instanceRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		log.Errorf("[DB] Failed to set instance status. Error: %s", result.Error.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}

func (r *instanceRepository) UpdateOwnership(ctx context.Context, id int64, ownerWallet string, mint string) error {
	result := r.db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"owner_wallet": ownerWallet,
			"nft_mint":     mint,
		})

	if result.Error != nil {
		log.Errorf("[DB] Failed to update instance ownership. Error: %s", result.Error.Error())
		return utils.ErrorDatabaseError
	}

	return nil
}
