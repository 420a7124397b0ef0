package config

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Global.LogLevel != "info" {
		t.Fatalf("unexpected log level: %s", cfg.Global.LogLevel)
	}
	if cfg.Global.OperationTimeout != 6*time.Hour {
		t.Fatalf("unexpected timeout: %s", cfg.Global.OperationTimeout)
	}
	if cfg.Copy.SSHPort != 22 {
		t.Fatalf("unexpected ssh port: %d", cfg.Copy.SSHPort)
	}
	if cfg.Stores.Scope != "host" {
		t.Fatalf("unexpected scope: %s", cfg.Stores.Scope)
	}
	if cfg.Stores.KeystoreTemplate != "keystore_%s.jks" {
		t.Fatalf("unexpected keystore template: %s", cfg.Stores.KeystoreTemplate)
	}
	if cfg.Stores.TruststoreName != "truststore.jks" {
		t.Fatalf("unexpected truststore name: %s", cfg.Stores.TruststoreName)
	}
	if cfg.Stores.KeySize != 2048 || cfg.Stores.ValidityDays != 365 {
		t.Fatalf("unexpected key params: %d/%d", cfg.Stores.KeySize, cfg.Stores.ValidityDays)
	}
	if !cfg.Stores.AutoPassword {
		t.Fatalf("auto_password must default on")
	}
	if cfg.Archive.Compression != "zstd" {
		t.Fatalf("unexpected compression: %s", cfg.Archive.Compression)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected backend: %s", cfg.Storage.Backend)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cmu.yaml")
	content := `
copy:
  data_dir: /var/lib/cassandra/data
  bwlimit_kbps: 4096
stores:
  scope: CLUSTER
  nodes: [node1, node2]
archive:
  compression: GZIP
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Copy.DataDir != "/var/lib/cassandra/data" {
		t.Fatalf("unexpected data dir: %s", cfg.Copy.DataDir)
	}
	if cfg.Copy.BWLimitKBps != 4096 {
		t.Fatalf("unexpected bwlimit: %d", cfg.Copy.BWLimitKBps)
	}
	// Scope and compression are normalized to lower case.
	if cfg.Stores.Scope != "cluster" {
		t.Fatalf("unexpected scope: %s", cfg.Stores.Scope)
	}
	if cfg.Archive.Compression != "gzip" {
		t.Fatalf("unexpected compression: %s", cfg.Archive.Compression)
	}
	if len(cfg.Stores.Nodes) != 2 || cfg.Stores.Nodes[0] != "node1" {
		t.Fatalf("unexpected nodes: %v", cfg.Stores.Nodes)
	}
}

func TestLoadStorePasswordsFromEnv(t *testing.T) {
	t.Setenv(EnvTruststorePassword, "tspw")
	t.Setenv(EnvExistingTruststorePassword, "oldpw")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Stores.TruststorePassword != "tspw" {
		t.Fatalf("truststore password not taken from env")
	}
	if cfg.Stores.ExistingTruststorePassword != "oldpw" {
		t.Fatalf("existing truststore password not taken from env")
	}
}

func TestLoadEncryptedConfig(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "cmu.yaml")
	if err := os.WriteFile(plain, []byte("copy:\n  tag: snap1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	key := "hex:" + hex.EncodeToString(bytes.Repeat([]byte{0xab}, 32))
	enc := filepath.Join(dir, "cmu.yaml.enc")
	if err := EncryptConfigFile(plain, enc, key); err != nil {
		t.Fatalf("encrypt config: %v", err)
	}

	t.Setenv(EnvConfigKey, key)
	cfg, err := Load(enc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Copy.Tag != "snap1" {
		t.Fatalf("unexpected tag: %s", cfg.Copy.Tag)
	}
}

func TestLoadEncryptedConfigWithoutKey(t *testing.T) {
	dir := t.TempDir()
	enc := filepath.Join(dir, "cmu.yaml.enc")
	if err := os.WriteFile(enc, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvConfigKey, "")
	if _, err := Load(enc); err == nil {
		t.Fatalf("expected error without CMU_CONFIG_KEY")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/cmu.yaml"); err == nil {
		t.Fatalf("expected error for missing explicit config path")
	}
}
