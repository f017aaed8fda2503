package test

import (
	"context"
	"sync"
)

type MockDnsClient struct {
	mutex sync.Mutex

	CreateError error

	Records map[string]string
	Deleted []string
}

func NewMockDnsClient() *MockDnsClient {
	return &MockDnsClient{
		Records: map[string]string{},
	}
}

func (m *MockDnsClient) CreateRecord(ctx context.Context, hostname string, ip string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.CreateError != nil {
		return m.CreateError
	}

	m.Records[hostname] = ip
	return nil
}

func (m *MockDnsClient) DeleteRecord(ctx context.Context, hostname string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.Records, hostname)
	m.Deleted = append(m.Deleted, hostname)
	return nil
}
