// Package config loads application configuration from the environment,
// including the per-bank credential and account identifier tables.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"bankfeed/internal/models"
)

// knownBanks are the bank integrations that may be configured. A bank is
// included only when its BANK_ID variable is set. Santander has no scraper;
// it is configured for manual file imports only.
var knownBanks = []string{"bbva", "caixa", "ruralvia", "santander"}

// AccountRef maps an account-id-type to the store's account row and the
// masked account number used in logs and error messages.
type AccountRef struct {
	AccountID     uint   `validate:"required"`
	AccountNumber string `validate:"required"`
}

// BankConfig holds one bank's portal endpoint, credentials and account
// identifier table. BaseURL and credentials are empty for banks that are
// only fed through manual file imports.
type BankConfig struct {
	Name     string `validate:"required"`
	BaseURL  string `validate:"omitempty,url"`
	Username string
	Password string
	BankID   uint   `validate:"required"`

	// Accounts is keyed by account-id-type (BANK_ID, VIRTUAL_ID). A bank
	// may configure either or both.
	Accounts map[models.AccountType]AccountRef `validate:"min=1,dive"`
}

// Scrapable reports whether the bank has a portal to log into, as opposed
// to being fed by manual file imports only.
func (b BankConfig) Scrapable() bool {
	return b.BaseURL != "" && b.Username != "" && b.Password != ""
}

// Account returns the account ref for the given type.
func (b BankConfig) Account(t models.AccountType) (AccountRef, bool) {
	ref, ok := b.Accounts[t]
	return ref, ok
}

// Config holds application configuration.
type Config struct {
	Env  string
	Port string

	// APIKey guards the run-trigger API. Empty disables those endpoints.
	APIKey string

	// UserID scopes every store read and write.
	UserID string `validate:"required,uuid"`

	// Default categorization used when no rule matches.
	DefaultCategoryID    uint `validate:"required"`
	DefaultSubcategoryID uint `validate:"required"`

	// Browser automation.
	Headless    bool
	BrowserPath string

	// ScrapeWindowDays bounds an incremental scrape's from-date.
	ScrapeWindowDays int `validate:"min=1"`

	// Hard ceilings: the process must not hang on a portal.
	LoginTimeout time.Duration `validate:"required"`
	PageTimeout  time.Duration `validate:"required"`

	// ExportsDir is scanned by the manual import for bank export files.
	ExportsDir string

	Banks map[string]BankConfig `validate:"dive"`
}

// Bank returns the configuration for the named bank.
func (c *Config) Bank(name string) (BankConfig, error) {
	bank, ok := c.Banks[strings.ToLower(name)]
	if !ok {
		return BankConfig{}, fmt.Errorf("bank %q is not configured", name)
	}
	return bank, nil
}

// Load loads configuration from environment variables, reading a .env file
// first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		Env:                  getEnv("ENV", "development"),
		Port:                 getEnv("PORT", "8080"),
		APIKey:               getEnv("API_KEY", ""),
		UserID:               getEnv("USER_ID", ""),
		DefaultCategoryID:    getEnvUint("DEFAULT_CATEGORY_ID", 0),
		DefaultSubcategoryID: getEnvUint("DEFAULT_SUBCATEGORY_ID", 0),
		Headless:             getEnvBool("HEADLESS", true),
		BrowserPath:          getEnv("BROWSER_PATH", ""),
		ScrapeWindowDays:     int(getEnvUint("SCRAPE_WINDOW_DAYS", 31)),
		LoginTimeout:         getEnvDuration("LOGIN_TIMEOUT", 90*time.Second),
		PageTimeout:          getEnvDuration("PAGE_TIMEOUT", 30*time.Second),
		ExportsDir:           getEnv("EXPORTS_DIR", "data/exports"),
		Banks:                make(map[string]BankConfig),
	}

	for _, name := range knownBanks {
		prefix := strings.ToUpper(name)
		bankID := getEnvUint(prefix+"_BANK_ID", 0)
		if bankID == 0 {
			continue
		}

		bank := BankConfig{
			Name:     name,
			BaseURL:  getEnv(prefix+"_BASE_URL", ""),
			Username: getEnv(prefix+"_USERNAME", ""),
			Password: getEnv(prefix+"_PASSWORD", ""),
			BankID:   bankID,
			Accounts: make(map[models.AccountType]AccountRef),
		}

		for _, accountType := range []models.AccountType{models.AccountTypeBankID, models.AccountTypeVirtualID} {
			suffix := string(accountType)
			id := getEnvUint(prefix+"_ACCOUNT_ID_TYPE_"+suffix, 0)
			if id == 0 {
				continue
			}
			bank.Accounts[accountType] = AccountRef{
				AccountID:     id,
				AccountNumber: getEnv(prefix+"_ACCOUNT_NUMBER_TYPE_"+suffix, ""),
			}
		}

		cfg.Banks[name] = bank
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvUint(key string, defaultValue uint) uint {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, falling back to %d\n", key, raw, defaultValue)
		return defaultValue
	}
	return uint(value)
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, falling back to %v\n", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return value
}
