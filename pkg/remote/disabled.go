package remote

import (
	"context"

	"github.com/cbodonnell/quicksave/pkg/auth"
	savetypes "github.com/cbodonnell/quicksave/pkg/save/types"
)

var _ SaveClient = &DisabledSaveClient{}

// DisabledSaveClient stands in when the deployment has no remote save
// integration. Every call fails with a ConfigurationError before any
// network attempt, which parks the orchestrator in its error state
// with no retries.
type DisabledSaveClient struct {
}

func NewDisabledSaveClient() *DisabledSaveClient {
	return &DisabledSaveClient{}
}

func (c *DisabledSaveClient) Close(ctx context.Context) error {
	return nil
}

func (c *DisabledSaveClient) Push(ctx context.Context, user auth.UserIdentity, snapshot *savetypes.SaveSnapshot) error {
	return &ConfigurationError{Reason: "remote save store is disabled"}
}

func (c *DisabledSaveClient) Pull(ctx context.Context, user auth.UserIdentity) (*savetypes.SaveSnapshot, error) {
	return nil, &ConfigurationError{Reason: "remote save store is disabled"}
}

func (c *DisabledSaveClient) Info(ctx context.Context, user auth.UserIdentity) (*savetypes.RemoteSaveInfo, error) {
	return nil, &ConfigurationError{Reason: "remote save store is disabled"}
}

func (c *DisabledSaveClient) Delete(ctx context.Context, user auth.UserIdentity) error {
	return &ConfigurationError{Reason: "remote save store is disabled"}
}

func (c *DisabledSaveClient) IsReachable(ctx context.Context) bool {
	return false
}
