package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultAlgodServer   = "https://testnet-api.voi.nodly.io"
	defaultIndexerServer = "https://testnet-idx.voi.nodly.io"
	defaultDotenvPath    = ".env"
	defaultAppID         = 43680506
)

// Endpoint addresses one remote service (node or indexer).
type Endpoint struct {
	Server string
	Token  string
	Port   string
}

// IdentityConfig holds the two secret phrases. Missing values stay empty.
type IdentityConfig struct {
	CreatorMnemonic string
	OwnerMnemonic   string
}

type ServiceConfig struct {
	LogLevel       string
	Stages         []string
	JournalPath    string
	JournalDSN     string
	PushgatewayURL string
}

// AppConfig ties together environment values and the runbook.
type AppConfig struct {
	Node     Endpoint
	Indexer  Endpoint
	Identity IdentityConfig
	Runbook  RunbookConfig
	Service  ServiceConfig
}

// Load reads .env (real environment wins), the optional runbook file and
// the environment overrides.
func Load() (*AppConfig, error) {
	if err := loadDotenv(envOr("DOTENV_PATH", defaultDotenvPath)); err != nil {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	runbook := DefaultRunbook()
	if path := envOr("RUNBOOK_PATH", ""); path != "" {
		loaded, err := LoadRunbook(path)
		if err != nil {
			return nil, fmt.Errorf("load runbook: %w", err)
		}
		runbook = *loaded
	}

	appID, err := envOrUint64("APP_ID", runbook.AppID)
	if err != nil {
		return nil, err
	}
	runbook.AppID = appID
	runbook.Deploy.ApprovalPath = envOr("APPROVAL_TEAL_PATH", runbook.Deploy.ApprovalPath)
	runbook.Deploy.ClearPath = envOr("CLEAR_TEAL_PATH", runbook.Deploy.ClearPath)

	return &AppConfig{
		Node: Endpoint{
			Server: envOr("ALGOD_SERVER", defaultAlgodServer),
			Token:  envOr("ALGOD_TOKEN", ""),
			Port:   envOr("ALGOD_PORT", ""),
		},
		Indexer: Endpoint{
			Server: envOr("INDEXER_SERVER", defaultIndexerServer),
			Token:  envOr("INDEXER_TOKEN", ""),
			Port:   envOr("INDEXER_PORT", ""),
		},
		Identity: IdentityConfig{
			CreatorMnemonic: envOr("MN", ""),
			OwnerMnemonic:   envOr("MN2", ""),
		},
		Runbook: runbook,
		Service: ServiceConfig{
			LogLevel:       envOr("LOG_LEVEL", "info"),
			Stages:         splitList(envOr("STAGES", "")),
			JournalPath:    envOr("JOURNAL_PATH", ""),
			JournalDSN:     envOr("JOURNAL_POSTGRES_DSN", ""),
			PushgatewayURL: envOr("PUSHGATEWAY_URL", ""),
		},
	}, nil
}

func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrUint64(key string, fallback uint64) (uint64, error) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadRunbook reads a runbook file on top of the defaults, so a file only
// needs the values it changes.
func LoadRunbook(path string) (*RunbookConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultRunbook()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
