package instance

import (
	"time"

	"gorm.io/gorm"
)

// Instance is the single source of truth for one provisioned agent box. The
// primary key is the provider-assigned server id, not a locally generated one.
type Instance struct {
	Id          int64  `gorm:"primaryKey;autoIncrement:false"`
	Name        string `gorm:"index;not null"`
	OwnerWallet string `gorm:"index;not null"`
	Status      Status `gorm:"index;not null"`

	// Sub-state for progress reporting, only meaningful while provisioning.
	ProvisioningStep *ProvisioningStep

	Ip            string
	GatewayToken  string
	TerminalToken string

	// Single-use phone-home secret. Non-null exactly while provisioning,
	// cleared atomically by the final callback.
	CallbackToken *string `gorm:"index"`

	// Wallet generated on the VM itself, reported by the final callback.
	VmWallet *string

	// On-chain identity token address, set by a successful mint.
	NftMint *string `gorm:"index"`

	// Encrypted at rest with the credential cipher.
	TelegramBotToken    *string
	TelegramBotUsername *string

	// Encrypted at rest; used by the session bridge.
	RootPassword string

	SnapshotId string
	CreatedAt  time.Time
	ExpiresAt  time.Time      `gorm:"index;not null"`
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusMinting      Status = "minting"
	StatusRunning      Status = "running"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
	StatusDeleting     Status = "deleting"
	StatusDeleted      Status = "deleted"
)

type ProvisioningStep string

const (
	StepVmCreated       ProvisioningStep = "vm_created"
	StepSystemReady     ProvisioningStep = "system_ready"
	StepAgentInstalling ProvisioningStep = "agent_installing"
	StepAgentStarting   ProvisioningStep = "agent_starting"
	StepFinalizing      ProvisioningStep = "finalizing"
)

var ProvisioningSteps = []ProvisioningStep{
	StepVmCreated,
	StepSystemReady,
	StepAgentInstalling,
	StepAgentStarting,
	StepFinalizing,
}

func IsValidStep(step ProvisioningStep) bool {
	for _, known := range ProvisioningSteps {
		if step == known {
			return true
		}
	}

	return false
}

type InstanceIn struct {
	Name             *string `json:"name,omitempty"`
	TelegramBotToken *string `json:"telegramBotToken,omitempty"`
}

type InstanceOut struct {
	Id                  int64             `json:"id"`
	Name                string            `json:"name"`
	OwnerWallet         string            `json:"ownerWallet"`
	Status              Status            `json:"status"`
	ProvisioningStep    *ProvisioningStep `json:"provisioningStep,omitempty"`
	Ip                  string            `json:"ip,omitempty"`
	VmWallet            *string           `json:"vmWallet,omitempty"`
	NftMint             *string           `json:"nftMint,omitempty"`
	TelegramBotUsername *string           `json:"telegramBotUsername,omitempty"`
	SnapshotId          string            `json:"snapshotId,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	ExpiresAt           time.Time         `json:"expiresAt"`
}

type RenameIn struct {
	Name string `json:"name" binding:"required"`
}

type AgentIn struct {
	DisplayName *string `json:"displayName,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ExtendIn struct {
	Days uint `json:"days" binding:"required"`
}

type WithdrawIn struct {
	Destination string `json:"destination" binding:"required"`
	Amount      uint64 `json:"amount" binding:"required"`
}

type StepIn struct {
	Id    int64  `json:"id" binding:"required"`
	Token string `json:"token" binding:"required"`
	Step  string `json:"step" binding:"required"`
}

type CallbackIn struct {
	Id           int64  `json:"id" binding:"required"`
	Token        string `json:"token" binding:"required"`
	VmWallet     string `json:"vmWallet" binding:"required"`
	GatewayToken string `json:"gatewayToken" binding:"required"`
}

type AccessOut struct {
	GatewayUrl  string `json:"gatewayUrl"`
	TerminalUrl string `json:"terminalUrl"`
}

type HealthOut struct {
	Status           Status            `json:"status"`
	ProvisioningStep *ProvisioningStep `json:"provisioningStep,omitempty"`
	Reachable        bool              `json:"reachable"`
}

// ConfigOut is what the booting VM fetches with its callback token.
type ConfigOut struct {
	ApiUrl              string  `json:"apiUrl"`
	Name                string  `json:"name"`
	TelegramBotToken    *string `json:"telegramBotToken,omitempty"`
	TelegramBotUsername *string `json:"telegramBotUsername,omitempty"`
}

type SyncOut struct {
	Claimed   int `json:"claimed"`
	Recovered int `json:"recovered"`
}

func toInstanceOut(obj *Instance) InstanceOut {
	return InstanceOut{
		Id:                  obj.Id,
		Name:                obj.Name,
		OwnerWallet:         obj.OwnerWallet,
		Status:              obj.Status,
		ProvisioningStep:    obj.ProvisioningStep,
		Ip:                  obj.Ip,
		VmWallet:            obj.VmWallet,
		NftMint:             obj.NftMint,
		TelegramBotUsername: obj.TelegramBotUsername,
		SnapshotId:          obj.SnapshotId,
		CreatedAt:           obj.CreatedAt,
		ExpiresAt:           obj.ExpiresAt,
	}
}
