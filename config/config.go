package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds process-wide settings sourced from the environment.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`
	TenantsFile string `env:"TENANTS_FILE" envDefault:"tenants.json"`

	AdminAddr         string `env:"ADMIN_ADDR" envDefault:":8080"`
	AdminUser         string `env:"ADMIN_USER" envDefault:"admin"`
	AdminPasswordHash string `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret         string `env:"JWT_SECRET" envDefault:"dev-only-secret"`
}

// Shop is one configured routing target for a tenant: requests for this shop
// are broadcast to the channel, optionally into a sub-channel thread.
type Shop struct {
	Name      string `json:"name"`
	ChannelID int64  `json:"channel_id"`
	ThreadID  int    `json:"thread_id,omitempty"`
}

// TenantConfig is the static per-tenant (per-city) configuration. It is built
// once at process start and never mutated; each tenant runtime receives its
// own value.
type TenantConfig struct {
	Key        string   `json:"key"`
	CityName   string   `json:"city_name"`
	Credential string   `json:"credential"`
	Positions  []string `json:"positions"`
	Shops      []Shop   `json:"shops"`
	ReportsDir string   `json:"reports_dir"`
	Owners     []int64  `json:"owners"`

	ExpiryThresholdHours int    `json:"expiry_threshold_hours"`
	ReportTime           string `json:"report_time"`
	Timezone             string `json:"timezone"`
}

// Load reads the process config from the environment (with an optional .env
// file) and the tenant table from the configured JSON file.
func Load() (Config, []TenantConfig, error) {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("config: parse env: %w", err)
	}

	tenants, err := LoadTenants(cfg.TenantsFile)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, tenants, nil
}

// LoadTenants parses the tenant table from a JSON file and applies defaults.
func LoadTenants(path string) ([]TenantConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read tenants file: %w", err)
	}

	var tenants []TenantConfig
	if err := json.Unmarshal(data, &tenants); err != nil {
		return nil, fmt.Errorf("config: parse tenants file: %w", err)
	}

	seen := make(map[string]struct{}, len(tenants))
	for i := range tenants {
		t := &tenants[i]
		if t.Key == "" {
			return nil, fmt.Errorf("config: tenant %d missing key", i)
		}
		if _, dup := seen[t.Key]; dup {
			return nil, fmt.Errorf("config: duplicate tenant key %q", t.Key)
		}
		seen[t.Key] = struct{}{}

		if t.ExpiryThresholdHours <= 0 {
			t.ExpiryThresholdHours = 72
		}
		if t.ReportTime == "" {
			t.ReportTime = "09:00"
		}
		if _, _, err := t.ReportClock(); err != nil {
			return nil, fmt.Errorf("config: tenant %q: %w", t.Key, err)
		}
		if t.Timezone == "" {
			t.Timezone = "UTC"
		}
		if _, err := t.Location(); err != nil {
			return nil, fmt.Errorf("config: tenant %q: %w", t.Key, err)
		}
		if t.ReportsDir == "" {
			t.ReportsDir = fmt.Sprintf("instance/%s/reports", t.Key)
		}
	}
	return tenants, nil
}

// CredentialUnset reports whether the tenant's transport credential is a
// placeholder. Such tenants are skipped at boot instead of failing siblings.
func (t TenantConfig) CredentialUnset() bool {
	return t.Credential == "" || strings.Contains(t.Credential, "YOUR_")
}

// FindShop resolves a routing target by shop name.
func (t TenantConfig) FindShop(name string) (Shop, bool) {
	for _, s := range t.Shops {
		if s.Name == name {
			return s, true
		}
	}
	return Shop{}, false
}

// HasPosition reports whether the position belongs to the tenant's closed set.
func (t TenantConfig) HasPosition(name string) bool {
	for _, p := range t.Positions {
		if p == name {
			return true
		}
	}
	return false
}

// ExpiryThreshold returns the configured age past which a pending request is
// considered stale.
func (t TenantConfig) ExpiryThreshold() time.Duration {
	return time.Duration(t.ExpiryThresholdHours) * time.Hour
}

// ReportClock parses the daily job trigger time ("HH:MM").
func (t TenantConfig) ReportClock() (hour, minute int, err error) {
	parsed, err := time.Parse("15:04", t.ReportTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid report_time %q: %w", t.ReportTime, err)
	}
	return parsed.Hour(), parsed.Minute(), nil
}

// Location resolves the tenant's IANA timezone. "Today" for request date
// validation is computed in this location.
func (t TenantConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}
