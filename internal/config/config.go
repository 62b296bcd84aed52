package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/GregMSThompson/finance-sync/internal/dto"
)

type Config struct {
	ProjectID         string
	Region            string
	LogLevel          string
	Port              string
	PlaidClientID     string
	PlaidSecret       string
	PlaidEnvironment  dto.PlaidEnvironment
	PlaidCountryCodes []string
	KMSKeyName        string
	VertexModel       string
	Sync              SyncConfig
	AI                AIConfig
	Notify            NotifyConfig
}

type SyncConfig struct {
	Enabled        bool
	Interval       time.Duration
	CryptoInterval time.Duration
	PollInterval   time.Duration
	Timeout        time.Duration
	Workers        int
	QueueSize      int
	SchedulerInAPI bool
}

type AIConfig struct {
	Enabled            bool
	Model              string
	Timeout            time.Duration
	RequestSpacing     time.Duration
	RecategorizeBudget int
}

type NotifyConfig struct {
	Collection string
	AppName    string
}

// New reads configuration from the environment. Keys are the historical
// flat names (PROJECTID, PLAIDSECRET, ...) plus nested ones such as
// SYNC_INTERVAL and AI_MODEL.
func New() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ProjectID:         v.GetString("projectid"),
		Region:            v.GetString("region"),
		LogLevel:          v.GetString("loglevel"),
		Port:              v.GetString("port"),
		PlaidClientID:     v.GetString("plaidclientid"),
		PlaidSecret:       v.GetString("plaidsecret"),
		PlaidEnvironment:  getPlaidEnvironment(v.GetString("plaidenvironment")),
		PlaidCountryCodes: splitList(v.GetString("plaidcountrycodes")),
		KMSKeyName:        v.GetString("kmskeyname"),
		VertexModel:       v.GetString("vertexmodel"),
		Sync: SyncConfig{
			Enabled:        v.GetBool("sync.enabled"),
			Interval:       v.GetDuration("sync.interval"),
			CryptoInterval: v.GetDuration("sync.cryptointerval"),
			PollInterval:   v.GetDuration("sync.pollinterval"),
			Timeout:        v.GetDuration("sync.timeout"),
			Workers:        v.GetInt("sync.workers"),
			QueueSize:      v.GetInt("sync.queuesize"),
			SchedulerInAPI: v.GetBool("sync.schedulerinapi"),
		},
		AI: AIConfig{
			Enabled:            v.GetBool("ai.enabled"),
			Model:              v.GetString("ai.model"),
			Timeout:            v.GetDuration("ai.timeout"),
			RequestSpacing:     v.GetDuration("ai.requestspacing"),
			RecategorizeBudget: v.GetInt("ai.recategorizebudget"),
		},
		Notify: NotifyConfig{
			Collection: v.GetString("notify.collection"),
			AppName:    v.GetString("notify.appname"),
		},
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = cfg.VertexModel
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("projectid", "")
	v.SetDefault("region", "europe-west1")
	v.SetDefault("loglevel", "info")
	v.SetDefault("port", "8080")
	v.SetDefault("plaidclientid", "")
	v.SetDefault("plaidsecret", "")
	v.SetDefault("plaidenvironment", "sandbox")
	v.SetDefault("plaidcountrycodes", "BE,NL,FR,DE")
	v.SetDefault("kmskeyname", "")
	v.SetDefault("vertexmodel", "gemini-2.0-flash")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", time.Hour)
	v.SetDefault("sync.cryptointerval", 15*time.Minute)
	v.SetDefault("sync.pollinterval", time.Minute)
	v.SetDefault("sync.timeout", 10*time.Minute)
	v.SetDefault("sync.workers", 4)
	v.SetDefault("sync.queuesize", 64)
	v.SetDefault("sync.schedulerinapi", false)

	v.SetDefault("ai.enabled", true)
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.timeout", 20*time.Second)
	v.SetDefault("ai.requestspacing", 2*time.Second)
	v.SetDefault("ai.recategorizebudget", 30)

	v.SetDefault("notify.collection", "mail")
	v.SetDefault("notify.appname", "Finance Sync")
}

func (c *Config) validate() error {
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("config: sync.pollinterval must be positive, got %s", c.Sync.PollInterval)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("config: sync.workers must be at least 1, got %d", c.Sync.Workers)
	}
	if c.Sync.QueueSize < 1 {
		return fmt.Errorf("config: sync.queuesize must be at least 1, got %d", c.Sync.QueueSize)
	}
	if c.Sync.Timeout <= 0 {
		return fmt.Errorf("config: sync.timeout must be positive, got %s", c.Sync.Timeout)
	}
	return nil
}

func getPlaidEnvironment(env string) dto.PlaidEnvironment {
	switch strings.ToLower(env) {
	case "sandbox":
		return dto.PlaidSandbox
	case "development":
		return dto.PlaidDevelopment
	default: // "production"
		return dto.PlaidProduction
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToUpper(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
