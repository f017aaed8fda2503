package test

import (
	"agentboxBackend/domain/event"
	"agentboxBackend/domain/instance"
	"agentboxBackend/utils"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInstance_Success(t *testing.T) {
	env := SetupTestServer(t)

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		Name: Ptr("my-first-box"),
	})

	assert.Equal(t, http.StatusCreated, resp.Code)
	var body utils.OkResponse[instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, "my-first-box", body.Payload.Name)
	assert.Equal(t, instance.StatusProvisioning, body.Payload.Status)
	require.NotNil(t, body.Payload.ProvisioningStep)
	assert.Equal(t, instance.StepVmCreated, *body.Payload.ProvisioningStep)
	assert.Equal(t, MockServerIp, body.Payload.Ip)

	assert.Equal(t, MockServerIp, env.Dns.Records["my-first-box.agentbox.test"])

	row := env.LoadInstance(t, body.Payload.Id)
	require.NotNil(t, row.CallbackToken)
	assert.NotEmpty(t, row.GatewayToken)
	assert.NotEmpty(t, row.TerminalToken)
	assert.NotEqual(t, MockRootPassword, row.RootPassword)
}

func TestCreateInstance_GeneratedName(t *testing.T) {
	env := SetupTestServer(t)

	resp := env.Request("POST", "/instances", env.WalletToken(t, WalletAlice), instance.InstanceIn{})

	assert.Equal(t, http.StatusCreated, resp.Code)
	var body utils.OkResponse[instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Payload.Name)
	assert.Equal(t, WalletAlice, body.Payload.OwnerWallet)
}

func TestCreateInstance_InvalidName(t *testing.T) {
	env := SetupTestServer(t)

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		Name: Ptr("Invalid Name!"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, env.VmProvider.CreatedLocations)
}

func TestCreateInstance_NameTaken(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 600, Name: "taken-name"})

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		Name: Ptr("taken-name"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, env.VmProvider.CreatedLocations)
}

func TestCreateInstance_InvalidBotToken(t *testing.T) {
	env := SetupTestServer(t)
	env.Telegram.ValidationError = fmt.Errorf("401: unauthorized")

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		TelegramBotToken: Ptr("not-a-real-token"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, env.VmProvider.CreatedLocations)
}

func TestCreateInstance_LocationFallback(t *testing.T) {
	env := SetupTestServer(t)
	env.VmProvider.CapacityExhausted["nbg1"] = true
	env.VmProvider.CapacityExhausted["fsn1"] = true

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{})

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, []string{"hel1"}, env.VmProvider.CreatedLocations)

	var body utils.OkResponse[instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	// The creation event records which location won the fallback.
	resp = env.Request("GET", "/instances/"+itoa(body.Payload.Id)+"/events", OperatorToken, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var events utils.OkResponse[[]event.EventOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))

	created, found := lo.Find(events.Payload, func(item event.EventOut) bool {
		return item.Type == event.TypeInstanceCreated
	})
	require.True(t, found)
	assert.Equal(t, "hel1", created.Metadata["location"])
}

func TestCreateInstance_CleansUpWhenRowInsertFails(t *testing.T) {
	env := SetupTestServer(t)
	// Occupy the id the provider will assign next so the row insert collides.
	env.SeedInstance(t, instance.Instance{Id: 1001, Name: "occupied-row"})

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		Name: Ptr("leaky-box"),
	})

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, env.VmProvider.DeletedIds, int64(1001))
	assert.NotContains(t, env.Dns.Records, "leaky-box.agentbox.test")
	assert.Contains(t, env.Dns.Deleted, "leaky-box.agentbox.test")
}

func TestCreateInstance_AllLocationsExhausted(t *testing.T) {
	env := SetupTestServer(t)
	env.VmProvider.CapacityExhausted["nbg1"] = true
	env.VmProvider.CapacityExhausted["fsn1"] = true
	env.VmProvider.CapacityExhausted["hel1"] = true

	resp := env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{})

	assert.Equal(t, http.StatusBadGateway, resp.Code)
}

func TestGetInstances_OwnerScoping(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 601, Name: "alice-box", OwnerWallet: WalletAlice})
	env.SeedInstance(t, instance.Instance{Id: 602, Name: "bob-box", OwnerWallet: WalletBob})

	resp := env.Request("GET", "/instances", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[[]instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Payload, 1)
	assert.Equal(t, "alice-box", body.Payload[0].Name)
}

func TestGetInstances_AdminSeesAll(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 601, Name: "alice-box", OwnerWallet: WalletAlice})
	env.SeedInstance(t, instance.Instance{Id: 602, Name: "bob-box", OwnerWallet: WalletBob})

	resp := env.Request("GET", "/instances?all=true", OperatorToken, nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[[]instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Payload, 2)
}

func TestGetInstance_ForeignOwnerForbidden(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 603, OwnerWallet: WalletAlice})

	resp := env.Request("GET", "/instances/603", env.WalletToken(t, WalletBob), nil)
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = env.Request("GET", "/instances/603", OperatorToken, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestGetInstance_NotFound(t *testing.T) {
	env := SetupTestServer(t)

	resp := env.Request("GET", "/instances/999", OperatorToken, nil)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestRenameInstance_Success(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 604, Name: "old-name", OwnerWallet: WalletAlice})

	resp := env.Request("PATCH", "/instances/604", env.WalletToken(t, WalletAlice), instance.RenameIn{
		Name: "new-name",
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "new-name", env.LoadInstance(t, 604).Name)
}

func TestRenameInstance_NameTaken(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 604, Name: "old-name", OwnerWallet: WalletAlice})
	env.SeedInstance(t, instance.Instance{Id: 605, Name: "other-name", OwnerWallet: WalletAlice})

	resp := env.Request("PATCH", "/instances/604", env.WalletToken(t, WalletAlice), instance.RenameIn{
		Name: "other-name",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "old-name", env.LoadInstance(t, 604).Name)
}

func TestExtendInstance_Success(t *testing.T) {
	env := SetupTestServer(t)
	created := time.Now()
	env.SeedInstance(t, instance.Instance{
		Id:        606,
		CreatedAt: created,
		ExpiresAt: created.Add(7 * 24 * time.Hour),
	})

	resp := env.Request("POST", "/instances/606/extend", OperatorToken, instance.ExtendIn{Days: 30})

	assert.Equal(t, http.StatusOK, resp.Code)
	row := env.LoadInstance(t, 606)
	assert.WithinDuration(t, created.Add(37*24*time.Hour), row.ExpiresAt, time.Minute)
}

func TestExtendInstance_CapExceeded(t *testing.T) {
	env := SetupTestServer(t)
	created := time.Now()
	env.SeedInstance(t, instance.Instance{
		Id:        606,
		CreatedAt: created,
		ExpiresAt: created.Add(7 * 24 * time.Hour),
	})

	resp := env.Request("POST", "/instances/606/extend", OperatorToken, instance.ExtendIn{Days: 90})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	row := env.LoadInstance(t, 606)
	assert.WithinDuration(t, created.Add(7*24*time.Hour), row.ExpiresAt, time.Minute)
}

func TestGetExpiring(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:        607,
		Name:      "soon-gone",
		ExpiresAt: time.Now().Add(2 * 24 * time.Hour),
	})
	env.SeedInstance(t, instance.Instance{
		Id:        608,
		Name:      "long-lived",
		ExpiresAt: time.Now().Add(60 * 24 * time.Hour),
	})

	resp := env.Request("GET", "/instances/expiring?days=7", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[[]instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Payload, 1)
	assert.Equal(t, "soon-gone", body.Payload[0].Name)
}

func TestDeleteInstance_Success(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 609, Name: "doomed-box", OwnerWallet: WalletAlice})
	env.Dns.Records["doomed-box.agentbox.test"] = MockServerIp

	resp := env.Request("DELETE", "/instances/609", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, env.VmProvider.DeletedIds, int64(609))
	assert.Contains(t, env.Dns.Deleted, "doomed-box.agentbox.test")

	resp = env.Request("GET", "/instances/609", OperatorToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestDeleteInstance_ReleasesName(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 610, Name: "recycled-name", OwnerWallet: WalletAlice})

	resp := env.Request("DELETE", "/instances/610", env.WalletToken(t, WalletAlice), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.Request("POST", "/instances", OperatorToken, instance.InstanceIn{
		Name: Ptr("recycled-name"),
	})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestRestartInstance(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 611, OwnerWallet: WalletAlice})

	resp := env.Request("POST", "/instances/611/restart", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, env.VmProvider.RebootedIds, int64(611))
}

func TestGetAccess(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:            612,
		Name:          "reachable-box",
		OwnerWallet:   WalletAlice,
		GatewayToken:  "gw-token",
		TerminalToken: "term-token",
	})

	resp := env.Request("GET", "/instances/612/access", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.AccessOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://reachable-box.agentbox.test/?token=gw-token", body.Payload.GatewayUrl)
	assert.Equal(t, "wss://reachable-box.agentbox.test/terminal?token=term-token", body.Payload.TerminalUrl)
}

func TestUpdateAgent_Success(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 613, OwnerWallet: WalletAlice})

	resp := env.Request("PATCH", "/instances/613/agent", env.WalletToken(t, WalletAlice), instance.AgentIn{
		DisplayName: Ptr("Atlas"),
		Description: Ptr("A research assistant"),
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, env.Bridge.PushedPatches, 1)
	assert.Equal(t, "Atlas", *env.Bridge.PushedPatches[0].DisplayName)
}

func TestUpdateAgent_NotRunning(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 614, OwnerWallet: WalletAlice, Status: instance.StatusProvisioning})

	resp := env.Request("PATCH", "/instances/614/agent", env.WalletToken(t, WalletAlice), instance.AgentIn{
		DisplayName: Ptr("Atlas"),
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, env.Bridge.PushedPatches)
}

func TestWithdraw_Success(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 615, OwnerWallet: WalletAlice})

	resp := env.Request("POST", "/instances/615/withdraw", env.WalletToken(t, WalletAlice), instance.WithdrawIn{
		Destination: WalletBob,
		Amount:      250,
	})

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[string]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "mock-signature", body.Payload)

	require.Len(t, env.Bridge.Withdrawals, 1)
	assert.Equal(t, uint64(250), env.Bridge.Withdrawals[0].Amount)
}

func TestWithdraw_NotRunning(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 616, OwnerWallet: WalletAlice, Status: instance.StatusMinting})

	resp := env.Request("POST", "/instances/616/withdraw", env.WalletToken(t, WalletAlice), instance.WithdrawIn{
		Destination: WalletBob,
		Amount:      250,
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, env.Bridge.Withdrawals)
}

func TestSweepExpired(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:        617,
		Name:      "overdue-box",
		ExpiresAt: time.Now().Add(-time.Hour),
	})
	env.SeedInstance(t, instance.Instance{
		Id:        618,
		Name:      "healthy-box",
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})

	reaped, err := env.Service.SweepExpired(t.Context())

	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
	assert.Contains(t, env.VmProvider.DeletedIds, int64(617))
	assert.NotContains(t, env.VmProvider.DeletedIds, int64(618))

	resp := env.Request("GET", "/instances/617", OperatorToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
