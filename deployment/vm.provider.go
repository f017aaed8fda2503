package deployment

import (
	"context"
	"errors"
)

type (
	// VmProvider abstracts the cloud-server API that hosts agent boxes.
	VmProvider interface {
		Create(ctx context.Context, request CreateRequest) (*Server, error)
		Get(ctx context.Context, serverId int64) (*Server, error)
		Delete(ctx context.Context, serverId int64) error
		Reboot(ctx context.Context, serverId int64) error
	}

	CreateRequest struct {
		Name       string
		Location   string
		ServerType string
		SnapshotId string
		UserData   string
	}

	Server struct {
		Id           int64
		Ip           string
		RootPassword string
		Status       string
	}
)

// ErrLocationCapacity indicates the requested location is out of capacity and
// the caller should retry the next one in its fallback list.
var ErrLocationCapacity = errors.New("the selected location has no capacity left")

// ErrServerNotFound indicates the provider no longer knows the server id.
// Teardown treats this as success so deletes stay idempotent.
var ErrServerNotFound = errors.New("the provider does not know this server")
