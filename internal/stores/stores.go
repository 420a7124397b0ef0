// Package stores generates per-node TLS keystores and a shared
// truststore by driving openssl and keytool. All cryptographic work is
// delegated to those tools; this package only sequences them.
package stores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rowjay/cassandra-maint-utility/internal/config"
	"github.com/rowjay/cassandra-maint-utility/internal/cryptoutil"
	"github.com/rowjay/cassandra-maint-utility/internal/prompt"
	"github.com/rowjay/cassandra-maint-utility/internal/runner"
)

// ErrConfig marks configuration and precondition failures; the CLI
// maps it to exit code 2.
var ErrConfig = errors.New("stores config")

const (
	ScopeHost    = "host"
	ScopeCluster = "cluster"

	passwordFile = "stores.password"
)

// authority is the signing authority in effect for the current node.
type authority struct {
	name     string // scope name: node for host scope, "cluster" otherwise
	keyPath  string
	certPath string
}

// Generator drives the keystore/truststore build.
type Generator struct {
	Fs        afero.Fs
	Runner    runner.Runner
	Passwords prompt.PasswordReader
	Log       zerolog.Logger
	Cfg       config.StoresConfig
}

// Run generates all stores. Any signing or import failure aborts the
// whole run; there is no per-node retry or skip-and-continue.
func (g *Generator) Run(ctx context.Context) error {
	if g.Cfg.Scope != ScopeHost && g.Cfg.Scope != ScopeCluster {
		return fmt.Errorf("%w: invalid scope %q (host or cluster)", ErrConfig, g.Cfg.Scope)
	}
	if strings.Count(g.Cfg.KeystoreTemplate, "%s") != 1 || strings.Count(g.Cfg.KeystoreTemplate, "%") != 1 {
		return fmt.Errorf("%w: keystore_template %q must contain exactly one %%s", ErrConfig, g.Cfg.KeystoreTemplate)
	}

	dn, err := g.loadDN()
	if err != nil {
		return err
	}

	nodes := g.Cfg.Nodes
	if len(nodes) == 0 {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		nodes = []string{host}
	}

	if err := g.Fs.MkdirAll(g.Cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	truststorePW, err := g.truststorePassword()
	if err != nil {
		return err
	}
	var existingPW string
	if g.Cfg.ExistingTruststore != "" {
		existingPW, err = g.existingTruststorePassword()
		if err != nil {
			return err
		}
	}

	truststorePath := filepath.Join(g.Cfg.OutputDir, g.Cfg.TruststoreName)
	truststoreRecorded := false

	var ca *authority
	for _, node := range nodes {
		// Host scope mints a fresh authority for every node; cluster
		// scope creates it once and reuses it for remaining nodes.
		if ca == nil || g.Cfg.Scope == ScopeHost {
			scopeName := node
			if g.Cfg.Scope == ScopeCluster {
				scopeName = "cluster"
			}
			ca, err = g.createAuthority(ctx, dn, scopeName)
			if err != nil {
				return err
			}
			if err := g.importAuthority(ctx, ca, truststorePath, truststorePW); err != nil {
				return err
			}
			if !truststoreRecorded {
				if err := g.recordPassword(g.Cfg.TruststoreName, truststorePW); err != nil {
					return err
				}
				truststoreRecorded = true
			}
			if g.Cfg.ExistingTruststore != "" {
				if err := g.importAuthority(ctx, ca, g.Cfg.ExistingTruststore, existingPW); err != nil {
					return err
				}
			}
		}
		if err := g.buildKeystore(ctx, dn, ca, node); err != nil {
			return err
		}
	}
	g.Log.Info().Int("nodes", len(nodes)).Str("output", g.Cfg.OutputDir).Msg("stores generated")
	return nil
}

func (g *Generator) loadDN() (DN, error) {
	var dn DN
	var err error
	if g.Cfg.DN != "" {
		dn, err = ParseDN(g.Cfg.DN)
	} else {
		dn, err = LoadDN(g.Fs, g.Cfg.CAConfigPath)
	}
	if err != nil {
		return DN{}, err
	}
	if dn.Empty() {
		return DN{}, fmt.Errorf("%w: distinguished name configuration is empty", ErrConfig)
	}
	return dn, nil
}

// createAuthority mints a self-signed root authority for the scope.
// Authorities are per run: a rerun always produces a fresh one.
func (g *Generator) createAuthority(ctx context.Context, dn DN, scopeName string) (*authority, error) {
	ca := &authority{
		name:     scopeName,
		keyPath:  filepath.Join(g.Cfg.OutputDir, fmt.Sprintf("ca_%s.key", scopeName)),
		certPath: filepath.Join(g.Cfg.OutputDir, fmt.Sprintf("ca_%s.crt", scopeName)),
	}
	g.Log.Info().Str("authority", scopeName).Msg("creating root authority")
	err := g.Runner.Run(ctx, "openssl", "req",
		"-new", "-x509", "-nodes",
		"-newkey", fmt.Sprintf("rsa:%d", g.Cfg.KeySize),
		"-keyout", ca.keyPath,
		"-out", ca.certPath,
		"-days", strconv.Itoa(g.Cfg.ValidityDays),
		"-subj", dn.SubjectOpenSSL("rootCA-"+scopeName),
	)
	if err != nil {
		return nil, fmt.Errorf("create authority %s: %w", scopeName, err)
	}
	return ca, nil
}

// importAuthority inserts the authority's public certificate into a
// truststore, creating the store when it does not exist yet.
func (g *Generator) importAuthority(ctx context.Context, ca *authority, storePath, password string) error {
	err := g.Runner.Run(ctx, "keytool", "-importcert",
		"-keystore", storePath,
		"-alias", "rootca-"+ca.name,
		"-file", ca.certPath,
		"-storepass", password,
		"-noprompt",
	)
	if err != nil {
		return fmt.Errorf("import authority into %s: %w", storePath, err)
	}
	return nil
}

// buildKeystore produces one node keystore: keypair, signing request,
// authority-signed certificate, and the imported chain.
func (g *Generator) buildKeystore(ctx context.Context, dn DN, ca *authority, node string) error {
	ksName := fmt.Sprintf(g.Cfg.KeystoreTemplate, node)
	ksPath := filepath.Join(g.Cfg.OutputDir, ksName)
	csrPath := filepath.Join(g.Cfg.OutputDir, node+".csr")
	crtPath := filepath.Join(g.Cfg.OutputDir, node+".crt")

	password, err := g.storePassword(ksName)
	if err != nil {
		return err
	}

	g.Log.Info().Str("node", node).Str("keystore", ksName).Msg("building keystore")

	if err := g.Runner.Run(ctx, "keytool", "-genkeypair",
		"-keyalg", "RSA",
		"-alias", node,
		"-keystore", ksPath,
		"-storepass", password,
		"-keypass", password,
		"-keysize", strconv.Itoa(g.Cfg.KeySize),
		"-validity", strconv.Itoa(g.Cfg.ValidityDays),
		"-dname", dn.SubjectKeytool(node),
		"-noprompt",
	); err != nil {
		return fmt.Errorf("generate keypair for %s: %w", node, err)
	}

	if err := g.Runner.Run(ctx, "keytool", "-certreq",
		"-alias", node,
		"-keystore", ksPath,
		"-storepass", password,
		"-file", csrPath,
	); err != nil {
		return fmt.Errorf("signing request for %s: %w", node, err)
	}

	if err := g.Runner.Run(ctx, "openssl", "x509", "-req",
		"-CA", ca.certPath,
		"-CAkey", ca.keyPath,
		"-in", csrPath,
		"-out", crtPath,
		"-days", strconv.Itoa(g.Cfg.ValidityDays),
		"-CAcreateserial",
	); err != nil {
		return fmt.Errorf("sign certificate for %s: %w", node, err)
	}

	// Root first so keytool can verify the chain of the node cert.
	if err := g.Runner.Run(ctx, "keytool", "-importcert",
		"-keystore", ksPath,
		"-alias", "rootca-"+ca.name,
		"-file", ca.certPath,
		"-storepass", password,
		"-noprompt",
	); err != nil {
		return fmt.Errorf("import authority for %s: %w", node, err)
	}
	if err := g.Runner.Run(ctx, "keytool", "-importcert",
		"-keystore", ksPath,
		"-alias", node,
		"-file", crtPath,
		"-storepass", password,
		"-noprompt",
	); err != nil {
		return fmt.Errorf("import certificate for %s: %w", node, err)
	}

	return g.recordPassword(ksName, password)
}

// storePassword resolves the password for a newly created store.
func (g *Generator) storePassword(label string) (string, error) {
	if g.Cfg.AutoPassword {
		return cryptoutil.RandomPassword(16)
	}
	return g.Passwords.Password(label)
}

func (g *Generator) truststorePassword() (string, error) {
	if g.Cfg.TruststorePassword != "" {
		return g.Cfg.TruststorePassword, nil
	}
	return g.storePassword(g.Cfg.TruststoreName)
}

// The existing truststore's password cannot be generated: the store
// already has one. It must come from the environment or the operator.
func (g *Generator) existingTruststorePassword() (string, error) {
	if g.Cfg.ExistingTruststorePassword != "" {
		return g.Cfg.ExistingTruststorePassword, nil
	}
	if g.Passwords == nil {
		return "", fmt.Errorf("%w: %s is not set and prompting is unavailable", ErrConfig, config.EnvExistingTruststorePassword)
	}
	return g.Passwords.Password(filepath.Base(g.Cfg.ExistingTruststore))
}

// recordPassword appends "<store-filename>:<password>" to the password
// file, preserving append order across the run.
func (g *Generator) recordPassword(storeName, password string) error {
	path := filepath.Join(g.Cfg.OutputDir, passwordFile)
	f, err := g.Fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open password file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%s:%s\n", storeName, password); err != nil {
		return fmt.Errorf("record password: %w", err)
	}
	return nil
}
