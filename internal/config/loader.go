package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration values for the booking service.
type Config struct {
	HTTPPort           int
	EncryptionKey      string
	OAuthClientID      string
	OAuthClientSecret  string
	OAuthRedirectURL   string
	UseMockGateway     bool
	RoomsCacheTTL      time.Duration
	PeopleCacheTTL     time.Duration
	CacheDSN           string
	CachePurgeSchedule string
}

// fileConfig mirrors Config for YAML decoding. Durations are written as
// strings in time.ParseDuration format ("360h").
type fileConfig struct {
	HTTPPort           int    `yaml:"http_port"`
	EncryptionKey      string `yaml:"encryption_key"`
	OAuthClientID      string `yaml:"oauth_client_id"`
	OAuthClientSecret  string `yaml:"oauth_client_secret"`
	OAuthRedirectURL   string `yaml:"oauth_redirect_url"`
	UseMockGateway     *bool  `yaml:"use_mock_gateway"`
	RoomsCacheTTL      string `yaml:"rooms_cache_ttl"`
	PeopleCacheTTL     string `yaml:"people_cache_ttl"`
	CacheDSN           string `yaml:"cache_dsn"`
	CachePurgeSchedule string `yaml:"cache_purge_schedule"`
}

// Load parses configuration from an optional YAML file named by
// QUICKMEET_CONFIG, then applies environment overrides.
//
// The loader applies defaults for optional fields while validating required
// values and reporting every missing or invalid entry at once.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:           8080,
		RoomsCacheTTL:      15 * 24 * time.Hour,
		PeopleCacheTTL:     30 * 24 * time.Hour,
		CachePurgeSchedule: "0 * * * *",
	}

	if path := strings.TrimSpace(os.Getenv("QUICKMEET_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("QUICKMEET_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "QUICKMEET_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if key := strings.TrimSpace(os.Getenv("QUICKMEET_ENCRYPTION_KEY")); key != "" {
		cfg.EncryptionKey = key
	}
	if cfg.EncryptionKey == "" {
		missing = append(missing, "QUICKMEET_ENCRYPTION_KEY")
	}

	if id := strings.TrimSpace(os.Getenv("QUICKMEET_OAUTH_CLIENT_ID")); id != "" {
		cfg.OAuthClientID = id
	}
	if secret := strings.TrimSpace(os.Getenv("QUICKMEET_OAUTH_CLIENT_SECRET")); secret != "" {
		cfg.OAuthClientSecret = secret
	}
	if redirect := strings.TrimSpace(os.Getenv("QUICKMEET_OAUTH_REDIRECT_URL")); redirect != "" {
		cfg.OAuthRedirectURL = redirect
	}

	if mockValue := strings.TrimSpace(os.Getenv("QUICKMEET_USE_MOCK_GATEWAY")); mockValue != "" {
		useMock, err := strconv.ParseBool(mockValue)
		if err != nil {
			invalid = append(invalid, "QUICKMEET_USE_MOCK_GATEWAY")
		} else {
			cfg.UseMockGateway = useMock
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("QUICKMEET_ROOMS_CACHE_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "QUICKMEET_ROOMS_CACHE_TTL")
		} else {
			cfg.RoomsCacheTTL = ttl
		}
	}

	if ttlValue := strings.TrimSpace(os.Getenv("QUICKMEET_PEOPLE_CACHE_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "QUICKMEET_PEOPLE_CACHE_TTL")
		} else {
			cfg.PeopleCacheTTL = ttl
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("QUICKMEET_CACHE_DSN")); dsn != "" {
		cfg.CacheDSN = dsn
	}

	if schedule := strings.TrimSpace(os.Getenv("QUICKMEET_CACHE_PURGE_SCHEDULE")); schedule != "" {
		cfg.CachePurgeSchedule = schedule
	}

	// OAuth settings only matter when the real gateway is in play.
	if !cfg.UseMockGateway {
		if cfg.OAuthClientID == "" {
			missing = append(missing, "QUICKMEET_OAUTH_CLIENT_ID")
		}
		if cfg.OAuthClientSecret == "" {
			missing = append(missing, "QUICKMEET_OAUTH_CLIENT_SECRET")
		}
		if cfg.OAuthRedirectURL == "" {
			missing = append(missing, "QUICKMEET_OAUTH_REDIRECT_URL")
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required configuration values are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("configuration values are invalid: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.HTTPPort > 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	if file.EncryptionKey != "" {
		cfg.EncryptionKey = file.EncryptionKey
	}
	if file.OAuthClientID != "" {
		cfg.OAuthClientID = file.OAuthClientID
	}
	if file.OAuthClientSecret != "" {
		cfg.OAuthClientSecret = file.OAuthClientSecret
	}
	if file.OAuthRedirectURL != "" {
		cfg.OAuthRedirectURL = file.OAuthRedirectURL
	}
	if file.UseMockGateway != nil {
		cfg.UseMockGateway = *file.UseMockGateway
	}
	if file.RoomsCacheTTL != "" {
		ttl, err := time.ParseDuration(file.RoomsCacheTTL)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("config file %s: invalid rooms_cache_ttl %q", path, file.RoomsCacheTTL)
		}
		cfg.RoomsCacheTTL = ttl
	}
	if file.PeopleCacheTTL != "" {
		ttl, err := time.ParseDuration(file.PeopleCacheTTL)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("config file %s: invalid people_cache_ttl %q", path, file.PeopleCacheTTL)
		}
		cfg.PeopleCacheTTL = ttl
	}
	if file.CacheDSN != "" {
		cfg.CacheDSN = file.CacheDSN
	}
	if file.CachePurgeSchedule != "" {
		cfg.CachePurgeSchedule = file.CachePurgeSchedule
	}

	return nil
}
