package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "registry",
				Password: "secret",
				Name:     "event_registry",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=registry password=secret dbname=event_registry sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "",
				Name:     "dbname",
				SSLMode:  "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
		{"port 443", ServerConfig{Host: "0.0.0.0", Port: 443}, "0.0.0.0:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "event_registry",
			User: "registry",
		},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 720 * time.Hour,
			Cookie:          CookieConfig{SameSite: "lax"},
		},
		Verification: VerificationConfig{
			Cooldown:    time.Minute,
			HourlyLimit: 5,
			TokenTTL:    30 * time.Minute,
		},
		Notifications: NotificationsConfig{MaxAttempts: 8},
		Logging:       LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid minimal config passes", func(c *Config) {}, ""},
		{"invalid server port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"invalid server port 70000", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing base_url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"zero access ttl", func(c *Config) { c.Auth.AccessTokenTTL = 0 }, "lifetimes"},
		{"refresh shorter than access", func(c *Config) { c.Auth.RefreshTokenTTL = time.Minute }, "refresh_token_ttl"},
		{"bad same_site", func(c *Config) { c.Auth.Cookie.SameSite = "sometimes" }, "same_site"},
		{"same_site is case insensitive", func(c *Config) { c.Auth.Cookie.SameSite = "Strict" }, ""},
		{"oidc enabled missing issuer_url", func(c *Config) {
			c.Auth.OIDC = OIDCConfig{Enabled: true, ClientID: "c", ClientSecret: "s"}
		}, "issuer_url"},
		{"oidc enabled missing client_id", func(c *Config) {
			c.Auth.OIDC = OIDCConfig{Enabled: true, IssuerURL: "https://idp.example.com", ClientSecret: "s"}
		}, "client_id"},
		{"oidc enabled all fields valid", func(c *Config) {
			c.Auth.OIDC = OIDCConfig{Enabled: true, IssuerURL: "https://idp.example.com", ClientID: "c", ClientSecret: "s"}
		}, ""},
		{"negative cooldown", func(c *Config) { c.Verification.Cooldown = -time.Second }, "cooldown"},
		{"zero hourly limit", func(c *Config) { c.Verification.HourlyLimit = 0 }, "hourly_limit"},
		{"zero token ttl", func(c *Config) { c.Verification.TokenTTL = 0 }, "token_ttl"},
		{"notifications without smtp host", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.SMTP.From = "noreply@example.com"
		}, "smtp.host"},
		{"notifications without from", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.SMTP.Host = "smtp.example.com"
		}, "smtp.from"},
		{"zero max attempts", func(c *Config) { c.Notifications.MaxAttempts = 0 }, "max_attempts"},
		{"tls enabled missing cert_file", func(c *Config) {
			c.Security.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"}
		}, "cert_file"},
		{"tls enabled missing key_file", func(c *Config) {
			c.Security.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem"}
		}, "key_file"},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid logging level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() level %q unexpected error: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Load – defaults and env var expansion
// ---------------------------------------------------------------------------

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		if !strings.Contains(err.Error(), "invalid configuration") &&
			!strings.Contains(err.Error(), "error reading config file") {
			t.Fatalf("Load() unexpected error kind: %v", err)
		}
	} else {
		if cfg.Server.Port != 8080 {
			t.Errorf("default server port = %d, want 8080", cfg.Server.Port)
		}
		if cfg.Database.Host != "localhost" {
			t.Errorf("default database host = %q, want %q", cfg.Database.Host, "localhost")
		}
	}
}

func TestExpandEnv(t *testing.T) {
	t.Run("expands ${VAR} syntax", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_SECRET", "super-secret")
		if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
			t.Errorf("expandEnv() = %q, want %q", got, "super-secret")
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want %q", got, "no-vars-here")
		}
	})

	t.Run("unset variable expands to empty string", func(t *testing.T) {
		os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
		if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
verification:
  cooldown: "90s"
  hourly_limit: 3
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Database.Host != "dbhost" || cfg.Database.Name != "testdb" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Verification.Cooldown != 90*time.Second || cfg.Verification.HourlyLimit != 3 {
		t.Errorf("Verification = %+v", cfg.Verification)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
server:
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "event_registry"
  user: "registry"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server defaults = %+v", cfg.Server)
	}
	if cfg.Database.Port != 5432 || cfg.Database.SSLMode != "require" {
		t.Errorf("Database defaults = %+v", cfg.Database)
	}
	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 15m", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 30*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 720h", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Verification.Cooldown != 60*time.Second || cfg.Verification.HourlyLimit != 5 || cfg.Verification.TokenTTL != 30*time.Minute {
		t.Errorf("Verification defaults = %+v", cfg.Verification)
	}
	if cfg.Redis.Enabled() {
		t.Error("Redis should be disabled without an address")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("EVR_DATABASE_HOST", "env-db")
	t.Setenv("EVR_VERIFICATION_HOURLY_LIMIT", "7")
	t.Setenv("EVR_REDIS_ADDR", "redis:6379")
	const content = `
server:
  base_url: "http://localhost:8080"
database:
  host: "file-db"
  name: "event_registry"
  user: "registry"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %q, want env-db", cfg.Database.Host)
	}
	if cfg.Verification.HourlyLimit != 7 {
		t.Errorf("HourlyLimit = %d, want 7", cfg.Verification.HourlyLimit)
	}
	if !cfg.Redis.Enabled() {
		t.Error("Redis should be enabled")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
server:
  port: 8080
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "event_registry"
  user: "registry"
  password: "${TEST_DB_PASS}"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetPublicURL / VerificationConfig.VerifyLink
// ---------------------------------------------------------------------------

func TestGetPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"public url wins", ServerConfig{PublicURL: "https://public.example.com", BaseURL: "http://internal:8080"}, "https://public.example.com"},
		{"fallback to base url", ServerConfig{BaseURL: "http://internal:8080"}, "http://internal:8080"},
		{"both empty", ServerConfig{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetPublicURL(); got != tt.want {
				t.Errorf("GetPublicURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerifyLink(t *testing.T) {
	c := VerificationConfig{VerifyURL: "https://app.example.com/verify?token={token}"}
	if got := c.VerifyLink("abc"); got != "https://app.example.com/verify?token=abc" {
		t.Errorf("VerifyLink = %q", got)
	}
}
