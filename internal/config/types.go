package config

import "time"

// Config is the root configuration schema. Flag and positional-argument
// overrides are applied onto it in cmd/cmu before components see it.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Copy          CopyConfig          `mapstructure:"copy"`
	Stores        StoresConfig        `mapstructure:"stores"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
	AssumeYes        bool          `mapstructure:"assume_yes"`
	AllowMissingTools bool         `mapstructure:"allow_missing_tools"`
}

// CopyConfig drives the snapshot copy workflow.
type CopyConfig struct {
	DataDir       string   `mapstructure:"data_dir"`
	Tag           string   `mapstructure:"tag"`
	RemoteUser    string   `mapstructure:"remote_user"`
	RemoteHost    string   `mapstructure:"remote_host"`
	RemoteDataDir string   `mapstructure:"remote_data_dir"`
	Include       []string `mapstructure:"include"` // keyspace or keyspace.table tokens
	Exclude       []string `mapstructure:"exclude"`
	BWLimitKBps   int      `mapstructure:"bwlimit_kbps"` // 0 = unlimited
	Direct        bool     `mapstructure:"direct"`       // copy straight into table dirs
	Overwrite     bool     `mapstructure:"overwrite"`    // conflict policy; default preserve
	SSHPort       int      `mapstructure:"ssh_port"`
}

// StoresConfig drives keystore/truststore generation.
type StoresConfig struct {
	CAConfigPath       string   `mapstructure:"ca_config_path"`
	OutputDir          string   `mapstructure:"output_dir"`
	Scope              string   `mapstructure:"scope"` // host or cluster
	Nodes              []string `mapstructure:"nodes"`
	KeystoreTemplate   string   `mapstructure:"keystore_template"` // %s replaced with node
	TruststoreName     string   `mapstructure:"truststore_name"`
	KeySize            int      `mapstructure:"key_size"`
	ValidityDays       int      `mapstructure:"validity_days"`
	ExistingTruststore string   `mapstructure:"existing_truststore"` // rotation target
	AutoPassword       bool     `mapstructure:"auto_password"`
	DN                 string   `mapstructure:"dn"` // overrides the CA config DN

	// Populated from CMU_TRUSTSTORE_PASSWORD / CMU_EXISTING_TRUSTSTORE_PASSWORD.
	TruststorePassword         string `mapstructure:"-"`
	ExistingTruststorePassword string `mapstructure:"-"`
}

// ArchiveConfig drives the supplemental snapshot archive pipeline.
type ArchiveConfig struct {
	Cluster       string        `mapstructure:"cluster"`
	Compression   string        `mapstructure:"compression"` // none, gzip, zstd
	Encryption    bool          `mapstructure:"encryption"`
	EncryptionKey string        `mapstructure:"encryption_key"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
}

type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // local, s3
	Local   LocalStore `mapstructure:"local"`
	S3      S3Store    `mapstructure:"s3"`
	Prefix  string     `mapstructure:"prefix"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type NotificationsConfig struct {
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type ScheduleConfig struct {
	WindowStart string `mapstructure:"window_start"` // HH:MM local time
	WindowEnd   string `mapstructure:"window_end"`
	Timezone    string `mapstructure:"timezone"`
}
