package test

import (
	"agentboxBackend/domain/instance"
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/samber/lo"
)

const WalletAlice = "0x1111111111111111111111111111111111111111"
const WalletBob = "0x2222222222222222222222222222222222222222"

// Treated as admin everywhere, see the auth config in SetupTestServer.
const WalletTreasury = "0x9999999999999999999999999999999999999999"

// Request executes an HTTP request against the test router. An empty token
// sends no Authorization header.
func (env *TestEnv) Request(method string, path string, token string, payload any) *httptest.ResponseRecorder {
	body := bytes.NewBuffer(nil)
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	env.Router.ServeHTTP(resp, req)

	return resp
}

func (env *TestEnv) WalletToken(t *testing.T, wallet string) string {
	token, err := env.AuthManager.CreateAccessToken(wallet)
	if err != nil {
		t.Fatalf("Failed to create access token: %s", err.Error())
	}

	return token
}

// SeedInstance inserts a row directly, bypassing the creation flow. Fields
// not set by the caller get sensible running-instance defaults.
func (env *TestEnv) SeedInstance(t *testing.T, seed instance.Instance) *instance.Instance {
	if seed.Id == 0 {
		seed.Id = 500
	}
	if seed.Name == "" {
		seed.Name = "seeded-box"
	}
	if seed.OwnerWallet == "" {
		seed.OwnerWallet = WalletAlice
	}
	if seed.Status == "" {
		seed.Status = instance.StatusRunning
	}
	if seed.Ip == "" {
		seed.Ip = MockServerIp
	}
	if seed.RootPassword == "" {
		encrypted, err := env.Cipher.Encrypt(MockRootPassword)
		if err != nil {
			t.Fatalf("Failed to encrypt seed credential: %s", err.Error())
		}
		seed.RootPassword = encrypted
	}
	if seed.GatewayToken == "" {
		seed.GatewayToken = "seed-gateway-token"
	}
	if seed.TerminalToken == "" {
		seed.TerminalToken = "seed-terminal-token"
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now()
	}
	if seed.ExpiresAt.IsZero() {
		seed.ExpiresAt = time.Now().Add(7 * 24 * time.Hour)
	}

	if err := env.Db.Create(&seed).Error; err != nil {
		t.Fatalf("Failed to seed instance: %s", err.Error())
	}

	return &seed
}

func (env *TestEnv) LoadInstance(t *testing.T, id int64) *instance.Instance {
	row := &instance.Instance{}
	if err := env.Db.First(row, "id = ?", id).Error; err != nil {
		t.Fatalf("Failed to load instance %d: %s", id, err.Error())
	}

	return row
}

func Ptr[T any](value T) *T {
	return lo.ToPtr(value)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
