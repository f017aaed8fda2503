package test

import (
	"agentboxBackend/auth"
	"agentboxBackend/config"
	"agentboxBackend/cryptoutils"
	"agentboxBackend/domain/event"
	"agentboxBackend/domain/instance"
	"agentboxBackend/utils"
	"fmt"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const OperatorToken = "test-operator-token"

// Hex encoding of a 32-byte key, only used by tests.
const credentialKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

type TestEnv struct {
	Router      *gin.Engine
	Db          *gorm.DB
	AuthManager auth.AuthManager
	Cipher      *cryptoutils.CredentialCipher
	Service     instance.Service

	VmProvider *MockVmProvider
	Chain      *MockChainService
	Dns        *MockDnsClient
	Telegram   *MockTelegramClient
	Bridge     *MockBridge
}

func SetupTestServer(t *testing.T) *TestEnv {
	t.Setenv("AB_OPERATOR_TOKEN", OperatorToken)
	t.Setenv("AB_JWT_SECRET", "test-jwt-secret")

	gin.SetMode(gin.TestMode)

	testConfig := testConfig()

	// A uniquely named shared-cache database so every connection of the pool
	// sees the same in-memory tables.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", utils.GenerateUuid())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %s", err.Error())
	}

	if err := db.AutoMigrate(&instance.Instance{}); err != nil {
		t.Fatalf("Failed to migrate instances: %s", err.Error())
	}
	if err := db.AutoMigrate(&event.Event{}); err != nil {
		t.Fatalf("Failed to migrate events: %s", err.Error())
	}

	cipher, err := cryptoutils.NewCredentialCipher(credentialKey)
	if err != nil {
		t.Fatalf("Failed to create test cipher: %s", err.Error())
	}

	authManager := auth.CreateAuthManager(testConfig)
	vmProvider := NewMockVmProvider()
	chainService := NewMockChainService()
	dnsClient := NewMockDnsClient()
	telegramClient := NewMockTelegramClient()
	bridge := NewMockBridge()

	eventRecorder := event.CreateRecorder(event.CreateRepository(db))
	instanceRepository := instance.CreateRepository(db)
	instanceService := instance.CreateService(
		testConfig, instanceRepository, eventRecorder, authManager,
		vmProvider, dnsClient, chainService, telegramClient, bridge, cipher,
	)
	instanceHandler := instance.CreateHandler(instanceService)

	router := gin.New()
	instance.RegisterRoutes(router, instanceHandler, authManager)

	return &TestEnv{
		Router:      router,
		Db:          db,
		AuthManager: authManager,
		Cipher:      cipher,
		Service:     instanceService,
		VmProvider:  vmProvider,
		Chain:       chainService,
		Dns:         dnsClient,
		Telegram:    telegramClient,
		Bridge:      bridge,
	}
}

func testConfig() *config.AgentboxConfig {
	return &config.AgentboxConfig{
		Server: config.ServerConfig{
			Host:          "127.0.0.1",
			Port:          3000,
			PublicBaseUrl: "http://api.test.local",
		},
		Auth: config.AuthConfig{
			TreasuryWallet:     WalletTreasury,
			LoginWindowSeconds: 300,
		},
		Compute: config.ComputeConfig{
			ApiUrl:     "http://compute.test.local",
			ServerType: "cpx21",
			SnapshotId: "snapshot-1",
			Locations:  []string{"nbg1", "fsn1", "hel1"},
		},
		Dns: config.DnsConfig{
			ApiUrl: "http://dns.test.local",
			ZoneId: "zone-1",
			Domain: "agentbox.test",
		},
		Chain: config.ChainConfig{
			FundNativeAmount: 1000,
			FundStableAmount: 500,
		},
		Telegram: config.TelegramConfig{
			ApiUrl: "http://telegram.test.local",
		},
		Session: config.SessionConfig{
			SshUser:         "root",
			ConfigTimeout:   5 * time.Second,
			WithdrawTimeout: 5 * time.Second,
		},
		Expiry: config.ExpiryConfig{
			DefaultDays:   7,
			MaxDays:       90,
			SweepInterval: time.Hour,
		},
	}
}
