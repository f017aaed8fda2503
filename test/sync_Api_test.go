package test

import (
	"agentboxBackend/chain"
	"agentboxBackend/domain/instance"
	"agentboxBackend/utils"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSync_ClaimsTransferredInstance(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          630,
		OwnerWallet: WalletAlice,
		NftMint:     Ptr("5005"),
	})
	env.Chain.OwnedTokens = []string{"5005"}

	resp := env.Request("POST", "/instances/sync", env.WalletToken(t, WalletBob), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Payload.Claimed)
	assert.Equal(t, 0, body.Payload.Recovered)

	assert.Equal(t, WalletBob, env.LoadInstance(t, 630).OwnerWallet)
}

func TestSync_RecoversFromDescriptor(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          631,
		OwnerWallet: WalletAlice,
	})
	env.Chain.OwnedTokens = []string{"9001"}
	env.Chain.Identities["9001"] = &chain.IdentityDescriptor{
		Name:     "lost-box",
		ServerId: 631,
	}

	resp := env.Request("POST", "/instances/sync", env.WalletToken(t, WalletBob), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Payload.Claimed)
	assert.Equal(t, 1, body.Payload.Recovered)

	row := env.LoadInstance(t, 631)
	assert.Equal(t, WalletBob, row.OwnerWallet)
	require.NotNil(t, row.NftMint)
	assert.Equal(t, "9001", *row.NftMint)
}

func TestSync_NoChangesWhenOwnershipMatches(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          632,
		OwnerWallet: WalletAlice,
		NftMint:     Ptr("5005"),
	})
	env.Chain.OwnedTokens = []string{"5005"}

	resp := env.Request("POST", "/instances/sync", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Payload.Claimed)
	assert.Equal(t, 0, body.Payload.Recovered)
}

func TestSync_SkipsUnreadableDescriptors(t *testing.T) {
	env := SetupTestServer(t)
	env.Chain.OwnedTokens = []string{"not-a-known-token"}

	resp := env.Request("POST", "/instances/sync", env.WalletToken(t, WalletBob), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Payload.Claimed)
	assert.Equal(t, 0, body.Payload.Recovered)
}

func TestSync_ChainUnavailable(t *testing.T) {
	env := SetupTestServer(t)
	env.Chain.OwnedTokensError = errors.New("rpc connection refused")

	resp := env.Request("POST", "/instances/sync", env.WalletToken(t, WalletBob), nil)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestSync_OperatorOnBehalfOfWallet(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          633,
		OwnerWallet: WalletAlice,
		NftMint:     Ptr("5005"),
	})
	env.Chain.OwnedTokens = []string{"5005"}

	resp := env.Request("POST", "/instances/sync?wallet="+WalletBob, OperatorToken, nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Payload.Claimed)
	assert.Equal(t, WalletBob, env.LoadInstance(t, 633).OwnerWallet)
}

func TestSync_TreasuryAdminOnBehalfOfWallet(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          634,
		OwnerWallet: WalletAlice,
		NftMint:     Ptr("5005"),
	})
	env.Chain.OwnedTokens = []string{"5005"}

	resp := env.Request("POST", "/instances/sync?wallet="+WalletBob, env.WalletToken(t, WalletTreasury), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Payload.Claimed)
	assert.Equal(t, WalletBob, env.LoadInstance(t, 634).OwnerWallet)
}

func TestSync_WalletParamIgnoredForRegularCallers(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:          635,
		OwnerWallet: WalletAlice,
		NftMint:     Ptr("5005"),
	})
	env.Chain.OwnedTokens = []string{"5005"}

	// Alice cannot reconcile on Bob's behalf; the sync runs for herself and
	// finds nothing to change.
	resp := env.Request("POST", "/instances/sync?wallet="+WalletBob, env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.SyncOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 0, body.Payload.Claimed)
	assert.Equal(t, WalletAlice, env.LoadInstance(t, 635).OwnerWallet)
}

func TestSync_OperatorWithoutWalletParam(t *testing.T) {
	env := SetupTestServer(t)

	resp := env.Request("POST", "/instances/sync", OperatorToken, nil)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
