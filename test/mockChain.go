package test

import (
	"agentboxBackend/chain"
	"context"
	"sync"
)

// MockChainService fulfills transfers and mints in memory. Error fields let a
// test fail exactly one chain interaction. Guarded by a mutex because minting
// runs on a detached goroutine.
type MockChainService struct {
	mutex sync.Mutex

	TransferError         error
	MintError             error
	TransferIdentityError error
	OwnedTokensError      error

	NextMint    string
	OwnedTokens []string
	Identities  map[string]*chain.IdentityDescriptor

	Transfers         []MockTransfer
	TransferredMints  []string
	MintedDescriptors []chain.IdentityDescriptor
}

type MockTransfer struct {
	Asset  chain.Asset
	Amount uint64
	To     string
}

func NewMockChainService() *MockChainService {
	return &MockChainService{
		NextMint:   "7001",
		Identities: map[string]*chain.IdentityDescriptor{},
	}
}

func (m *MockChainService) Transfer(ctx context.Context, asset chain.Asset, amount uint64, to string) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.TransferError != nil {
		return "", m.TransferError
	}

	m.Transfers = append(m.Transfers, MockTransfer{Asset: asset, Amount: amount, To: to})
	return "mock-tx-hash", nil
}

func (m *MockChainService) MintIdentity(ctx context.Context, descriptor chain.IdentityDescriptor) (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.MintError != nil {
		return "", m.MintError
	}

	m.MintedDescriptors = append(m.MintedDescriptors, descriptor)
	m.Identities[m.NextMint] = &descriptor
	return m.NextMint, nil
}

func (m *MockChainService) TransferIdentity(ctx context.Context, mint string, to string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.TransferIdentityError != nil {
		return m.TransferIdentityError
	}

	m.TransferredMints = append(m.TransferredMints, mint)
	return nil
}

func (m *MockChainService) LoadIdentity(ctx context.Context, mint string) (*chain.IdentityDescriptor, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	descriptor, found := m.Identities[mint]
	if !found {
		return nil, chain.ErrNotConfigured
	}

	return descriptor, nil
}

func (m *MockChainService) OwnedTokensOf(ctx context.Context, wallet string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.OwnedTokensError != nil {
		return nil, m.OwnedTokensError
	}

	return m.OwnedTokens, nil
}

func (m *MockChainService) TransferCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.Transfers)
}
