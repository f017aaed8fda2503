package test

import (
	"agentboxBackend/deployment"
	"context"
	"sync"
)

// MockVmProvider hands out servers with predictable ids and records every
// lifecycle call. Locations listed in CapacityExhausted reject creation the
// way a full provider location would.
type MockVmProvider struct {
	mutex sync.Mutex

	nextId            int64
	CapacityExhausted map[string]bool
	CreateError       error

	CreatedLocations []string
	DeletedIds       []int64
	RebootedIds      []int64
}

const MockServerIp = "203.0.113.10"
const MockRootPassword = "mock-root-password"

func NewMockVmProvider() *MockVmProvider {
	return &MockVmProvider{
		nextId:            1000,
		CapacityExhausted: map[string]bool{},
	}
}

func (m *MockVmProvider) Create(ctx context.Context, request deployment.CreateRequest) (*deployment.Server, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.CreateError != nil {
		return nil, m.CreateError
	}
	if m.CapacityExhausted[request.Location] {
		return nil, deployment.ErrLocationCapacity
	}

	m.nextId++
	m.CreatedLocations = append(m.CreatedLocations, request.Location)

	return &deployment.Server{
		Id:           m.nextId,
		Ip:           MockServerIp,
		RootPassword: MockRootPassword,
		Status:       "running",
	}, nil
}

func (m *MockVmProvider) Get(ctx context.Context, id int64) (*deployment.Server, error) {
	return &deployment.Server{Id: id, Ip: MockServerIp, Status: "running"}, nil
}

func (m *MockVmProvider) Delete(ctx context.Context, id int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.DeletedIds = append(m.DeletedIds, id)
	return nil
}

func (m *MockVmProvider) Reboot(ctx context.Context, id int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.RebootedIds = append(m.RebootedIds, id)
	return nil
}
