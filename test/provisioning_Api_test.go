package test

import (
	"agentboxBackend/domain/event"
	"agentboxBackend/domain/instance"
	"agentboxBackend/utils"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vmWallet = "0x3333333333333333333333333333333333333333"

func createProvisioningInstance(t *testing.T, env *TestEnv) (int64, string) {
	resp := env.Request("POST", "/instances", env.WalletToken(t, WalletAlice), instance.InstanceIn{})
	require.Equal(t, http.StatusCreated, resp.Code)

	var body utils.OkResponse[instance.InstanceOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	row := env.LoadInstance(t, body.Payload.Id)
	require.NotNil(t, row.CallbackToken)

	return row.Id, *row.CallbackToken
}

func waitForStatus(t *testing.T, env *TestEnv, id int64, status instance.Status) {
	require.Eventually(t, func() bool {
		return env.LoadInstance(t, id).Status == status
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProvisioning_FullLifecycle(t *testing.T) {
	env := SetupTestServer(t)
	id, token := createProvisioningInstance(t, env)

	for _, step := range []string{"system_ready", "agent_installing", "agent_starting", "finalizing"} {
		resp := env.Request("POST", "/instances/callback/step", "", instance.StepIn{
			Id: id, Token: token, Step: step,
		})
		require.Equal(t, http.StatusOK, resp.Code)

		row := env.LoadInstance(t, id)
		require.NotNil(t, row.ProvisioningStep)
		assert.Equal(t, instance.ProvisioningStep(step), *row.ProvisioningStep)
	}

	resp := env.Request("POST", "/instances/callback", "", instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	waitForStatus(t, env, id, instance.StatusRunning)

	row := env.LoadInstance(t, id)
	assert.Nil(t, row.CallbackToken)
	assert.Nil(t, row.ProvisioningStep)
	require.NotNil(t, row.VmWallet)
	assert.Equal(t, vmWallet, *row.VmWallet)
	assert.Equal(t, "vm-gateway-token", row.GatewayToken)
	require.NotNil(t, row.NftMint)
	assert.Equal(t, "7001", *row.NftMint)

	// Both funding transfers went to the VM wallet.
	assert.Equal(t, 2, env.Chain.TransferCount())
}

func TestProvisioning_StepWithWrongToken(t *testing.T) {
	env := SetupTestServer(t)
	id, _ := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback/step", "", instance.StepIn{
		Id: id, Token: "forged-token", Step: "system_ready",
	})

	assert.Equal(t, http.StatusNotFound, resp.Code)
	require.NotNil(t, env.LoadInstance(t, id).ProvisioningStep)
	assert.Equal(t, instance.StepVmCreated, *env.LoadInstance(t, id).ProvisioningStep)
}

func TestProvisioning_InvalidStepName(t *testing.T) {
	env := SetupTestServer(t)
	id, token := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback/step", "", instance.StepIn{
		Id: id, Token: token, Step: "made_up_step",
	})

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestProvisioning_CallbackIsSingleUse(t *testing.T) {
	env := SetupTestServer(t)
	id, token := createProvisioningInstance(t, env)

	callback := instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	}

	resp := env.Request("POST", "/instances/callback", "", callback)
	require.Equal(t, http.StatusOK, resp.Code)
	waitForStatus(t, env, id, instance.StatusRunning)

	// A replay of the same callback finds no matching row.
	resp = env.Request("POST", "/instances/callback", "", callback)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// The consumed token no longer authorizes step reports either.
	resp = env.Request("POST", "/instances/callback/step", "", instance.StepIn{
		Id: id, Token: token, Step: "finalizing",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestProvisioning_RunsEvenWhenFundingFails(t *testing.T) {
	env := SetupTestServer(t)
	env.Chain.TransferError = errors.New("insufficient treasury balance")
	id, token := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback", "", instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	waitForStatus(t, env, id, instance.StatusRunning)
}

func TestProvisioning_RunsEvenWhenMintFails(t *testing.T) {
	env := SetupTestServer(t)
	env.Chain.MintError = errors.New("rpc timeout")
	id, token := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback", "", instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	waitForStatus(t, env, id, instance.StatusRunning)
	assert.Nil(t, env.LoadInstance(t, id).NftMint)
}

func TestRetryMint_SucceedsAfterFailure(t *testing.T) {
	env := SetupTestServer(t)
	env.Chain.MintError = errors.New("rpc timeout")
	id, token := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback", "", instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	waitForStatus(t, env, id, instance.StatusRunning)

	env.Chain.MintError = nil

	resp = env.Request("POST", "/instances/"+itoa(id)+"/mint", env.WalletToken(t, WalletAlice), nil)
	require.Equal(t, http.StatusOK, resp.Code)

	require.Eventually(t, func() bool {
		return env.LoadInstance(t, id).NftMint != nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "7001", *env.LoadInstance(t, id).NftMint)
	waitForStatus(t, env, id, instance.StatusRunning)
}

func TestRetryMint_AlreadyMinted(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:       620,
		VmWallet: Ptr(vmWallet),
		NftMint:  Ptr("7001"),
	})

	resp := env.Request("POST", "/instances/620/mint", OperatorToken, nil)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRetryMint_MissingVmWallet(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{Id: 621})

	resp := env.Request("POST", "/instances/621/mint", OperatorToken, nil)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRetryMint_AlreadyInProgress(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:       622,
		Status:   instance.StatusMinting,
		VmWallet: Ptr(vmWallet),
	})

	resp := env.Request("POST", "/instances/622/mint", OperatorToken, nil)

	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestBootConfig_Success(t *testing.T) {
	env := SetupTestServer(t)
	encryptedBotToken, err := env.Cipher.Encrypt("123456:bot-secret")
	require.NoError(t, err)

	env.SeedInstance(t, instance.Instance{
		Id:                  623,
		Name:                "booting-box",
		Status:              instance.StatusProvisioning,
		CallbackToken:       Ptr("boot-token"),
		TelegramBotToken:    Ptr(encryptedBotToken),
		TelegramBotUsername: Ptr("mock_agent_bot"),
	})

	resp := env.Request("GET", "/instances/config?id=623&token=boot-token", "", nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[instance.ConfigOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "booting-box", body.Payload.Name)
	assert.Equal(t, "http://api.test.local", body.Payload.ApiUrl)
	require.NotNil(t, body.Payload.TelegramBotToken)
	assert.Equal(t, "123456:bot-secret", *body.Payload.TelegramBotToken)
}

func TestBootConfig_WrongToken(t *testing.T) {
	env := SetupTestServer(t)
	env.SeedInstance(t, instance.Instance{
		Id:            624,
		Status:        instance.StatusProvisioning,
		CallbackToken: Ptr("boot-token"),
	})

	resp := env.Request("GET", "/instances/config?id=624&token=forged", "", nil)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestInstanceEvents_RecordLifecycle(t *testing.T) {
	env := SetupTestServer(t)
	id, token := createProvisioningInstance(t, env)

	resp := env.Request("POST", "/instances/callback", "", instance.CallbackIn{
		Id: id, Token: token, VmWallet: vmWallet, GatewayToken: "vm-gateway-token",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	waitForStatus(t, env, id, instance.StatusRunning)

	resp = env.Request("GET", "/instances/"+itoa(id)+"/events", env.WalletToken(t, WalletAlice), nil)

	assert.Equal(t, http.StatusOK, resp.Code)
	var body utils.OkResponse[[]event.EventOut]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	types := make([]string, 0, len(body.Payload))
	for _, item := range body.Payload {
		types = append(types, string(item.Type))
	}
	assert.Contains(t, types, "instance.created")
	assert.Contains(t, types, "instance.callback_received")
	assert.Contains(t, types, "instance.mint_succeeded")
}
