package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/rowjay/cassandra-maint-utility/internal/app"
	"github.com/rowjay/cassandra-maint-utility/internal/config"
	"github.com/rowjay/cassandra-maint-utility/internal/logging"
	"github.com/rowjay/cassandra-maint-utility/internal/notify"
	"github.com/rowjay/cassandra-maint-utility/internal/prompt"
	"github.com/rowjay/cassandra-maint-utility/internal/runner"
	"github.com/rowjay/cassandra-maint-utility/internal/stores"
	"github.com/rowjay/cassandra-maint-utility/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
	AssumeYes  bool
}

type copyFlags struct {
	Include   []string
	Exclude   []string
	BWLimit   int
	Direct    bool
	Overwrite bool
}

type archiveFlags struct {
	Include       []string
	Exclude       []string
	Cluster       string
	Compression   string
	Encrypt       bool
	EncryptionKey string
	Retry         int
	RetryBackoff  time.Duration
	Storage       string
	LocalPath     string
	S3Endpoint    string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string
}

type storesFlags struct {
	OutputDir          string
	Scope              string
	Nodes              []string
	KeystoreTemplate   string
	TruststoreName     string
	KeySize            int
	ValidityDays       int
	ExistingTruststore string
	DN                 string
	NoAutoPassword     bool
}

func main() {
	root := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "cmu",
		Short: "Cassandra cluster maintenance utility",
		Long: `cmu copies Cassandra snapshots between nodes, archives them to
object storage, and generates TLS keystores/truststores. All heavy
lifting is delegated to rsync, ssh, openssl, and keytool.`,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")
	rootCmd.PersistentFlags().BoolVarP(&root.AssumeYes, "yes", "y", false, "Suppress interactive confirmation prompts")

	rootCmd.AddCommand(newCopyCmd(root))
	rootCmd.AddCommand(newArchiveCmd(root))
	rootCmd.AddCommand(newStoresCmd(root))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, stores.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newCopyCmd(root *rootFlags) *cobra.Command {
	flags := &copyFlags{}
	cmd := &cobra.Command{
		Use:   "copy <local_data_dir> <snapshot_tag> <remote_user> <remote_host> <remote_data_dir>",
		Short: "Copy snapshot sstables to a remote node",
		Long: `Locates snapshot directories matching the tag under the local data
directory and pushes them to the remote node via rsync/ssh. By default
files are staged in a remote scratch directory and relocated with
generation-number conflict resolution; with --direct they are copied
straight into the table directories, replacing same-named files.`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			cfg.Copy.DataDir = args[0]
			cfg.Copy.Tag = args[1]
			cfg.Copy.RemoteUser = args[2]
			cfg.Copy.RemoteHost = args[3]
			cfg.Copy.RemoteDataDir = args[4]
			if len(flags.Include) > 0 {
				cfg.Copy.Include = flags.Include
			}
			if len(flags.Exclude) > 0 {
				cfg.Copy.Exclude = flags.Exclude
			}
			if flags.BWLimit > 0 {
				cfg.Copy.BWLimitKBps = flags.BWLimit
			}
			if flags.Direct {
				cfg.Copy.Direct = true
			}
			if flags.Overwrite {
				cfg.Copy.Overwrite = true
			}

			appSvc, ctx, cancel := buildApp(cfg)
			defer cancel()
			return appSvc.Copy(ctx)
		},
	}
	cmd.Flags().StringSliceVarP(&flags.Include, "keyspace", "k", nil, "Restrict to keyspace or keyspace.table (repeatable)")
	cmd.Flags().StringSliceVarP(&flags.Exclude, "exclude", "x", nil, "Exclude keyspace or keyspace.table (repeatable)")
	cmd.Flags().IntVar(&flags.BWLimit, "bwlimit", 0, "Bandwidth cap in KB/s (passed to rsync)")
	cmd.Flags().BoolVar(&flags.Direct, "direct", false, "Copy straight into table directories (last-writer-wins)")
	cmd.Flags().BoolVar(&flags.Overwrite, "overwrite", false, "Overwrite colliding sstables instead of renaming")
	return cmd
}

func newArchiveCmd(root *rootFlags) *cobra.Command {
	flags := &archiveFlags{}
	cmd := &cobra.Command{
		Use:   "archive <local_data_dir> <snapshot_tag>",
		Short: "Archive snapshot sstables to object storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			cfg.Copy.DataDir = args[0]
			cfg.Copy.Tag = args[1]
			if len(flags.Include) > 0 {
				cfg.Copy.Include = flags.Include
			}
			if len(flags.Exclude) > 0 {
				cfg.Copy.Exclude = flags.Exclude
			}
			if flags.Cluster != "" {
				cfg.Archive.Cluster = flags.Cluster
			}
			if flags.Compression != "" {
				cfg.Archive.Compression = strings.ToLower(flags.Compression)
			}
			if flags.Encrypt {
				cfg.Archive.Encryption = true
			}
			if flags.EncryptionKey != "" {
				cfg.Archive.EncryptionKey = flags.EncryptionKey
			}
			if flags.Retry > 0 {
				cfg.Archive.RetryCount = flags.Retry
			}
			if flags.RetryBackoff > 0 {
				cfg.Archive.RetryBackoff = flags.RetryBackoff
			}
			if flags.Storage != "" {
				cfg.Storage.Backend = strings.ToLower(flags.Storage)
			}
			if flags.LocalPath != "" {
				cfg.Storage.Local.Path = flags.LocalPath
			}
			if flags.S3Endpoint != "" {
				cfg.Storage.S3.Endpoint = flags.S3Endpoint
			}
			if flags.S3Bucket != "" {
				cfg.Storage.S3.Bucket = flags.S3Bucket
			}
			if flags.S3AccessKey != "" {
				cfg.Storage.S3.AccessKey = flags.S3AccessKey
			}
			if flags.S3SecretKey != "" {
				cfg.Storage.S3.SecretKey = flags.S3SecretKey
			}
			if flags.S3Region != "" {
				cfg.Storage.S3.Region = flags.S3Region
			}

			appSvc, ctx, cancel := buildApp(cfg)
			defer cancel()
			res, err := appSvc.Archive(ctx)
			if err != nil {
				return err
			}
			if res != nil {
				fmt.Println(res.Key)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&flags.Include, "keyspace", "k", nil, "Restrict to keyspace or keyspace.table (repeatable)")
	cmd.Flags().StringSliceVarP(&flags.Exclude, "exclude", "x", nil, "Exclude keyspace or keyspace.table (repeatable)")
	cmd.Flags().StringVar(&flags.Cluster, "cluster", "", "Cluster name used in the object key")
	cmd.Flags().StringVar(&flags.Compression, "compression", "", "Compression (none/gzip/zstd)")
	cmd.Flags().BoolVar(&flags.Encrypt, "encrypt", false, "Encrypt the archive")
	cmd.Flags().StringVar(&flags.EncryptionKey, "encryption-key", "", "Encryption key (base64 or hex)")
	cmd.Flags().IntVar(&flags.Retry, "retry", 0, "Upload retry attempts")
	cmd.Flags().DurationVar(&flags.RetryBackoff, "retry-backoff", 0, "Upload retry backoff")
	cmd.Flags().StringVar(&flags.Storage, "storage", "", "Storage backend (local, s3)")
	cmd.Flags().StringVar(&flags.LocalPath, "storage-path", "", "Local storage path")
	cmd.Flags().StringVar(&flags.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	cmd.Flags().StringVar(&flags.S3Bucket, "s3-bucket", "", "S3 bucket")
	cmd.Flags().StringVar(&flags.S3AccessKey, "s3-access-key", "", "S3 access key")
	cmd.Flags().StringVar(&flags.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	cmd.Flags().StringVar(&flags.S3Region, "s3-region", "", "S3 region")
	return cmd
}

func newStoresCmd(root *rootFlags) *cobra.Command {
	flags := &storesFlags{}
	cmd := &cobra.Command{
		Use:   "stores <ca_config_path>",
		Short: "Generate per-node TLS keystores and a shared truststore",
		Long: `Drives openssl and keytool to mint a root authority, per-node
keypairs and signed certificates, and assembles JKS keystores plus a
common truststore. Store passwords are auto-generated unless
--no-auto-password is given, in which case they are prompted for or
taken from CMU_TRUSTSTORE_PASSWORD / CMU_EXISTING_TRUSTSTORE_PASSWORD.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			cfg.Stores.CAConfigPath = args[0]
			if flags.OutputDir != "" {
				cfg.Stores.OutputDir = flags.OutputDir
			}
			if flags.Scope != "" {
				cfg.Stores.Scope = strings.ToLower(flags.Scope)
			}
			if len(flags.Nodes) > 0 {
				cfg.Stores.Nodes = flags.Nodes
			}
			if flags.KeystoreTemplate != "" {
				cfg.Stores.KeystoreTemplate = flags.KeystoreTemplate
			}
			if flags.TruststoreName != "" {
				cfg.Stores.TruststoreName = flags.TruststoreName
			}
			if flags.KeySize > 0 {
				cfg.Stores.KeySize = flags.KeySize
			}
			if flags.ValidityDays > 0 {
				cfg.Stores.ValidityDays = flags.ValidityDays
			}
			if flags.ExistingTruststore != "" {
				cfg.Stores.ExistingTruststore = flags.ExistingTruststore
			}
			if flags.DN != "" {
				cfg.Stores.DN = flags.DN
			}
			if flags.NoAutoPassword {
				cfg.Stores.AutoPassword = false
			}

			appSvc, ctx, cancel := buildApp(cfg)
			defer cancel()
			return appSvc.GenerateStores(ctx)
		},
	}
	cmd.Flags().StringVarP(&flags.OutputDir, "output-dir", "o", "", "Directory for generated stores and certificates")
	cmd.Flags().StringVar(&flags.Scope, "scope", "", "Authority scope (host or cluster)")
	cmd.Flags().StringSliceVarP(&flags.Nodes, "nodes", "n", nil, "Node identifiers (IP or hostname, repeatable)")
	cmd.Flags().StringVar(&flags.KeystoreTemplate, "keystore-template", "", "Keystore filename template, %s replaced with node")
	cmd.Flags().StringVar(&flags.TruststoreName, "truststore-name", "", "Truststore filename")
	cmd.Flags().IntVar(&flags.KeySize, "key-size", 0, "RSA key size in bits")
	cmd.Flags().IntVar(&flags.ValidityDays, "validity", 0, "Certificate validity in days")
	cmd.Flags().StringVar(&flags.ExistingTruststore, "existing-truststore", "", "Existing truststore to rotate the new authority into")
	cmd.Flags().StringVar(&flags.DN, "dn", "", "Distinguished name (e.g. \"CN=node, OU=ops, O=example, C=US\")")
	cmd.Flags().BoolVar(&flags.NoAutoPassword, "no-auto-password", false, "Prompt for store passwords instead of generating them")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cmu %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func loadConfig(root *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if root.AssumeYes {
		cfg.Global.AssumeYes = true
	}
	return cfg, nil
}

func buildApp(cfg *config.Config) (*app.App, context.Context, context.CancelFunc) {
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	var confirm prompt.Confirmer = prompt.Interactive{}
	if cfg.Global.AssumeYes {
		confirm = prompt.Auto{}
	}

	appSvc := app.New(cfg, afero.NewOsFs(), &runner.Exec{}, confirm, prompt.Interactive{}, logger, notify.FromConfig(cfg.Notifications))
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
	return appSvc, ctx, cancel
}
