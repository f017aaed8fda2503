package config

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

type (
	AgentboxConfig struct {
		Server   ServerConfig   `yaml:"server"`
		Database DatabaseConfig `yaml:"database"`
		Auth     AuthConfig     `yaml:"auth"`
		Compute  ComputeConfig  `yaml:"compute"`
		Dns      DnsConfig      `yaml:"dns"`
		Chain    ChainConfig    `yaml:"chain"`
		Telegram TelegramConfig `yaml:"telegram"`
		Session  SessionConfig  `yaml:"session"`
		Expiry   ExpiryConfig   `yaml:"expiry"`
	}

	ServerConfig struct {
		Host string `yaml:"host"`
		Port uint   `yaml:"port"`
		// Base URL the booting VM uses to reach this API for callbacks.
		PublicBaseUrl string `yaml:"publicBaseUrl"`
	}

	DatabaseConfig struct {
		Host      string `yaml:"host"`
		User      string `yaml:"user"`
		Database  string `yaml:"database"`
		Port      uint   `yaml:"port"`
		LocalFile string `yaml:"localFile"`
	}

	AuthConfig struct {
		// Wallet address with implicit admin rights, in addition to the operator secret.
		TreasuryWallet string `yaml:"treasuryWallet"`
		// Maximum age of the signed login message.
		LoginWindowSeconds uint `yaml:"loginWindowSeconds"`
	}

	ComputeConfig struct {
		ApiUrl     string   `yaml:"apiUrl"`
		ServerType string   `yaml:"serverType"`
		SnapshotId string   `yaml:"snapshotId"`
		Locations  []string `yaml:"locations"`
	}

	DnsConfig struct {
		ApiUrl string `yaml:"apiUrl"`
		ZoneId string `yaml:"zoneId"`
		Domain string `yaml:"domain"`
	}

	ChainConfig struct {
		RpcUrl          string `yaml:"rpcUrl"`
		CustodialWallet string `yaml:"custodialWallet"`
		StableToken     string `yaml:"stableToken"`
		IdentityToken   string `yaml:"identityToken"`
		// Funding amounts in the smallest denomination of each asset.
		FundNativeAmount uint64 `yaml:"fundNativeAmount"`
		FundStableAmount uint64 `yaml:"fundStableAmount"`
	}

	TelegramConfig struct {
		ApiUrl string `yaml:"apiUrl"`
	}

	SessionConfig struct {
		SshUser         string        `yaml:"sshUser"`
		ConfigTimeout   time.Duration `yaml:"configTimeout"`
		WithdrawTimeout time.Duration `yaml:"withdrawTimeout"`
	}

	ExpiryConfig struct {
		DefaultDays   uint          `yaml:"defaultDays"`
		MaxDays       uint          `yaml:"maxDays"`
		SweepInterval time.Duration `yaml:"sweepInterval"`
	}
)

func Load(fileName string) *AgentboxConfig {
	config := defaultConfig()

	if configData, err := os.ReadFile(fileName); err != nil {
		log.Warn("Failed to load configuration file.", "path", fileName)
		data, err := yaml.Marshal(&config)
		err = os.WriteFile(fileName, data, 0755)
		if err != nil {
			log.Error("Failed to write default configuration file.", "path", fileName)
		}
	} else if err := yaml.Unmarshal(configData, &config); err != nil {
		log.Error("Failed to parse configuration file.", "error", err.Error())
	}

	return config
}

func defaultConfig() *AgentboxConfig {
	return &AgentboxConfig{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          3000,
			PublicBaseUrl: "http://127.0.0.1:3000",
		},
		Database: DatabaseConfig{
			Host:      "127.0.0.1",
			User:      "agentbox",
			Database:  "agentbox",
			Port:      5432,
			LocalFile: "./test.db",
		},
		Auth: AuthConfig{
			TreasuryWallet:     "",
			LoginWindowSeconds: 300,
		},
		Compute: ComputeConfig{
			ApiUrl:     "https://api.hetzner.cloud/v1",
			ServerType: "cpx21",
			SnapshotId: "",
			Locations:  []string{"nbg1", "fsn1", "hel1"},
		},
		Dns: DnsConfig{
			ApiUrl: "https://api.cloudflare.com/client/v4",
			ZoneId: "",
			Domain: "agentbox.sh",
		},
		Chain: ChainConfig{
			RpcUrl:           "",
			CustodialWallet:  "",
			StableToken:      "",
			IdentityToken:    "",
			FundNativeAmount: 50_000_000,
			FundStableAmount: 5_000_000,
		},
		Telegram: TelegramConfig{
			ApiUrl: "https://api.telegram.org",
		},
		Session: SessionConfig{
			SshUser:         "root",
			ConfigTimeout:   30 * time.Second,
			WithdrawTimeout: 120 * time.Second,
		},
		Expiry: ExpiryConfig{
			DefaultDays:   7,
			MaxDays:       90,
			SweepInterval: time.Hour,
		},
	}
}
