package event

import (
	"time"
)

// Event is an append-only audit record of a state transition. Rows are never
// updated or deleted and are used for debugging, not for correctness.
type Event struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index;not null"`
	Type       Type      `gorm:"index;not null"`
	ActorType  string    `gorm:"not null"`
	ActorId    string
	EntityType string `gorm:"index:idx_events_entity"`
	EntityId   string `gorm:"index:idx_events_entity"`
	Metadata   string
}

type Type string

const (
	TypeInstanceCreated         Type = "instance.created"
	TypeInstanceCreateFailed    Type = "instance.create_failed"
	TypeStepReported            Type = "instance.step_reported"
	TypeCallbackReceived        Type = "instance.callback_received"
	TypeFundingFailed           Type = "instance.funding_failed"
	TypeMintSucceeded           Type = "instance.mint_succeeded"
	TypeMintFailed              Type = "instance.mint_failed"
	TypeIdentityTransferFailed  Type = "instance.identity_transfer_failed"
	TypeInstanceRenamed         Type = "instance.renamed"
	TypeInstanceAgentUpdated    Type = "instance.agent_updated"
	TypeInstanceExtended        Type = "instance.extended"
	TypeInstanceRestarted       Type = "instance.restarted"
	TypeInstanceDeleted         Type = "instance.deleted"
	TypeInstanceClaimed         Type = "instance.claimed"
	TypeInstanceRecovered       Type = "instance.recovered"
)

type Actor struct {
	Type string
	Id   string
}

var ActorSystem = Actor{Type: "system"}

func ActorWallet(wallet string) Actor {
	return Actor{Type: "wallet", Id: wallet}
}

func ActorOperator() Actor {
	return Actor{Type: "operator"}
}

func ActorVm(instanceId string) Actor {
	return Actor{Type: "vm", Id: instanceId}
}

type EventOut struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"type"`
	ActorType string         `json:"actorType"`
	ActorId   string         `json:"actorId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
