package main

import (
	"agentboxBackend/auth"
	"agentboxBackend/chain"
	"agentboxBackend/config"
	"agentboxBackend/cryptoutils"
	"agentboxBackend/deployment"
	"agentboxBackend/dns"
	"agentboxBackend/domain/event"
	"agentboxBackend/domain/instance"
	"agentboxBackend/reaper"
	"agentboxBackend/session"
	"agentboxBackend/telegram"
	"agentboxBackend/utils"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load()

	log.SetTimeFormat("[2006-01-02 15:04:05]")
	log.SetReportCaller(true)

	cmdArgs := utils.ParseArguments()
	agentboxConfig := config.Load(*cmdArgs.ConfigFile)

	db := connectToDatabase(agentboxConfig, *cmdArgs.UseLocalDatabase)
	migrateDatabase(db)

	cipher, err := cryptoutils.NewCredentialCipher(os.Getenv("AB_CREDENTIAL_KEY"))
	if err != nil {
		log.Fatalf("Failed to load the credential key: %s", err.Error())
	}

	authManager := auth.CreateAuthManager(agentboxConfig)
	vmProvider := deployment.CreateHetznerProvider(agentboxConfig)
	dnsClient := dns.CreateClient(agentboxConfig)
	telegramClient := telegram.CreateClient(agentboxConfig)
	sessionBridge := session.CreateBridge(agentboxConfig)
	chainService := createChainService(agentboxConfig)

	var (
		eventRepository = event.CreateRepository(db)
		eventRecorder   = event.CreateRecorder(eventRepository)
	)

	var (
		instanceRepository = instance.CreateRepository(db)
		instanceService    = instance.CreateService(
			agentboxConfig, instanceRepository, eventRecorder, authManager,
			vmProvider, dnsClient, chainService, telegramClient, sessionBridge, cipher,
		)
		instanceHandler = instance.CreateHandler(instanceService)
	)

	if !*cmdArgs.DevelopmentMode {
		gin.SetMode(gin.ReleaseMode)
	}
	webServer := gin.Default()

	instance.RegisterRoutes(webServer, instanceHandler, authManager)

	expiryReaper := reaper.CreateReaper(agentboxConfig, instanceService)
	go expiryReaper.Run(context.Background())

	var serverGroup sync.WaitGroup
	serverGroup.Add(1)
	socket := fmt.Sprintf("%s:%d", agentboxConfig.Server.Host, agentboxConfig.Server.Port)

	go startWebServer(webServer, socket, &serverGroup)

	log.Info("Agentbox API is ready to serve calls!", "conn", socket)
	serverGroup.Wait()
}

func connectToDatabase(agentboxConfig *config.AgentboxConfig, useLocalDatabase bool) *gorm.DB {
	var (
		db  *gorm.DB
		err error
	)

	if useLocalDatabase {
		db, err = gorm.Open(sqlite.Open(agentboxConfig.Database.LocalFile), &gorm.Config{})
	} else {
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d",
			agentboxConfig.Database.Host,
			agentboxConfig.Database.User,
			os.Getenv("AB_DB_PASSWORD"),
			agentboxConfig.Database.Database,
			agentboxConfig.Database.Port,
		)
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	}

	if err != nil {
		log.Fatalf("[DB] Failed to connect to database: %s", err.Error())
	}

	return db
}

func migrateDatabase(db *gorm.DB) {
	if err := db.AutoMigrate(&instance.Instance{}); err != nil {
		log.Fatalf("[DB] Failed to migrate instances: %s", err.Error())
	}
	if err := db.AutoMigrate(&event.Event{}); err != nil {
		log.Fatalf("[DB] Failed to migrate events: %s", err.Error())
	}
}

// createChainService returns a stand-in when no RPC endpoint is configured so
// the rest of the API keeps working without a chain backend.
func createChainService(agentboxConfig *config.AgentboxConfig) chain.Service {
	if agentboxConfig.Chain.RpcUrl == "" {
		log.Warn("[CHAIN] No RPC endpoint configured, funding and minting are disabled")
		return chain.CreateNullService()
	}

	chainService, err := chain.CreateRpcService(agentboxConfig)
	if err != nil {
		log.Fatalf("[CHAIN] Failed to initialize the chain service: %s", err.Error())
	}

	return chainService
}

func startWebServer(server *gin.Engine, socket string, waitGroup *sync.WaitGroup) {
	defer waitGroup.Done()

	if err := server.Run(socket); err != nil {
		log.Fatalf("Failed to start web server on %s: %s", socket, err.Error())
	}
}
