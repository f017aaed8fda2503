package test

import (
	"agentboxBackend/session"
	"context"
)

type MockBridge struct {
	PushError     error
	WithdrawError error
	Signature     string

	PushedPatches []session.AgentConfigPatch
	Withdrawals   []MockWithdrawal
}

type MockWithdrawal struct {
	Address     string
	Destination string
	Amount      uint64
}

func NewMockBridge() *MockBridge {
	return &MockBridge{
		Signature: "mock-signature",
	}
}

func (m *MockBridge) PushAgentConfig(ctx context.Context, address string, rootPassword string, patch session.AgentConfigPatch) error {
	if m.PushError != nil {
		return m.PushError
	}

	m.PushedPatches = append(m.PushedPatches, patch)
	return nil
}

func (m *MockBridge) Withdraw(ctx context.Context, address string, rootPassword string, destination string, amount uint64) (string, error) {
	if m.WithdrawError != nil {
		return "", m.WithdrawError
	}

	m.Withdrawals = append(m.Withdrawals, MockWithdrawal{
		Address:     address,
		Destination: destination,
		Amount:      amount,
	})
	return m.Signature, nil
}
