package instance

import (
	"agentboxBackend/auth"
	"agentboxBackend/config"
	"agentboxBackend/deployment"
	"agentboxBackend/utils"
	"context"
	"net/http"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collidingRepository reports every candidate name as taken.
type collidingRepository struct {
	Repository
	checks int
}

func (r *collidingRepository) NameTaken(ctx context.Context, name string) (bool, error) {
	r.checks++
	return true, nil
}

type countingVmProvider struct {
	deployment.VmProvider
	createCalls int
}

func (p *countingVmProvider) Create(ctx context.Context, request deployment.CreateRequest) (*deployment.Server, error) {
	p.createCalls++
	return &deployment.Server{Id: 1, Ip: "198.51.100.1"}, nil
}

func TestCreate_GivesUpAfterRepeatedNameCollisions(t *testing.T) {
	repo := &collidingRepository{}
	provider := &countingVmProvider{}
	service := CreateService(&config.AgentboxConfig{}, repo, nil, nil, provider, nil, nil, nil, nil, nil)

	_, err := service.Create(context.Background(), InstanceIn{}, auth.AuthenticatedCaller{Wallet: "0x1234"})

	require.ErrorIs(t, err, utils.ErrorNameAllocation)
	assert.Equal(t, nameAllocationAttempts, repo.checks)
	assert.Equal(t, 0, provider.createCalls)

	status, _ := utils.CreateErrorResponse(err)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreate_RequestedNameTakenIssuesNoServer(t *testing.T) {
	repo := &collidingRepository{}
	provider := &countingVmProvider{}
	service := CreateService(&config.AgentboxConfig{}, repo, nil, nil, provider, nil, nil, nil, nil, nil)

	_, err := service.Create(context.Background(), InstanceIn{Name: lo.ToPtr("wanted-name")}, auth.AuthenticatedCaller{Wallet: "0x1234"})

	require.ErrorIs(t, err, utils.ErrorNameTaken)
	assert.Equal(t, 0, provider.createCalls)
}
