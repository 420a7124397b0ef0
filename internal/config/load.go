package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/cassandra-maint-utility/internal/cryptoutil"
)

const (
	envPrefix = "CMU"

	// Env vars consumed directly, outside the viper key space.
	EnvTruststorePassword         = "CMU_TRUSTSTORE_PASSWORD"
	EnvExistingTruststorePassword = "CMU_EXISTING_TRUSTSTORE_PASSWORD"
	EnvConfigKey                  = "CMU_CONFIG_KEY"
)

// Load reads configuration from a file (optionally encrypted), env vars,
// and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			if typ := configTypeFromPath(resolved); typ != "" {
				vp.SetConfigType(typ)
			}
			key := os.Getenv(EnvConfigKey)
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, errors.New("config file is encrypted but CMU_CONFIG_KEY is not set")
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv("CMU_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		"cmu.yaml",
		"cmu.yml",
		"cmu.toml",
		"cmu.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, "cmu")
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range []string{"cmu.yaml.enc", "cmu.yml.enc", "cmu.toml.enc"} {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	switch {
	case strings.HasSuffix(path, ".toml") || strings.HasSuffix(path, ".toml.enc") || strings.HasSuffix(path, ".toml.encrypted"):
		return "toml"
	case strings.HasSuffix(path, ".json") || strings.HasSuffix(path, ".json.enc") || strings.HasSuffix(path, ".json.encrypted"):
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "console")
	vp.SetDefault("global.operation_timeout", "6h")
	vp.SetDefault("copy.ssh_port", 22)
	vp.SetDefault("stores.scope", "host")
	vp.SetDefault("stores.output_dir", "./stores")
	vp.SetDefault("stores.keystore_template", "keystore_%s.jks")
	vp.SetDefault("stores.truststore_name", "truststore.jks")
	vp.SetDefault("stores.key_size", 2048)
	vp.SetDefault("stores.validity_days", 365)
	vp.SetDefault("stores.auto_password", true)
	vp.SetDefault("archive.compression", "zstd")
	vp.SetDefault("archive.retry_count", 3)
	vp.SetDefault("archive.retry_backoff", "10s")
	vp.SetDefault("storage.backend", "local")
	vp.SetDefault("storage.local.path", "./archives")
	vp.SetDefault("schedule.timezone", "")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 6 * time.Hour
	}
	if cfg.Archive.RetryBackoff == 0 {
		cfg.Archive.RetryBackoff = 10 * time.Second
	}
	cfg.Stores.Scope = strings.ToLower(cfg.Stores.Scope)
	cfg.Archive.Compression = strings.ToLower(cfg.Archive.Compression)
	cfg.Storage.Backend = strings.ToLower(cfg.Storage.Backend)
}

func expandEnv(cfg *Config) {
	cfg.Archive.EncryptionKey = os.ExpandEnv(cfg.Archive.EncryptionKey)
	cfg.Storage.S3.AccessKey = os.ExpandEnv(cfg.Storage.S3.AccessKey)
	cfg.Storage.S3.SecretKey = os.ExpandEnv(cfg.Storage.S3.SecretKey)
	cfg.Storage.S3.SessionToken = os.ExpandEnv(cfg.Storage.S3.SessionToken)
	for i := range cfg.Notifications.Webhooks {
		cfg.Notifications.Webhooks[i].URL = os.ExpandEnv(cfg.Notifications.Webhooks[i].URL)
	}
	cfg.Stores.TruststorePassword = os.Getenv(EnvTruststorePassword)
	cfg.Stores.ExistingTruststorePassword = os.Getenv(EnvExistingTruststorePassword)
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
