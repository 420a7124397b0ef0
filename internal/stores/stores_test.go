package stores

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rowjay/cassandra-maint-utility/internal/config"
)

type fakeRunner struct {
	calls []string
	errs  map[string]error
}

func (f *fakeRunner) record(name string, args []string) string {
	call := name + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)
	return call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) error {
	call := f.record(name, args)
	for pattern, err := range f.errs {
		if strings.Contains(call, pattern) {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	f.record(name, args)
	return nil, nil
}

func (f *fakeRunner) RunInput(_ context.Context, _ []byte, name string, args ...string) error {
	f.record(name, args)
	return nil
}

func (f *fakeRunner) count(parts ...string) int {
	n := 0
	for _, call := range f.calls {
		match := true
		for _, part := range parts {
			if !strings.Contains(call, part) {
				match = false
				break
			}
		}
		if match {
			n++
		}
	}
	return n
}

type fixedPasswords struct{ value string }

func (p fixedPasswords) Password(string) (string, error) { return p.value, nil }

func baseConfig() config.StoresConfig {
	return config.StoresConfig{
		CAConfigPath:     "/etc/cmu/ca.yaml",
		OutputDir:        "/out",
		Scope:            ScopeHost,
		KeystoreTemplate: "keystore_%s.jks",
		TruststoreName:   "truststore.jks",
		KeySize:          2048,
		ValidityDays:     365,
		AutoPassword:     true,
		DN:               "CN=x, O=example, C=US",
	}
}

func newGenerator(f *fakeRunner, cfg config.StoresConfig) *Generator {
	return &Generator{
		Fs:        afero.NewMemMapFs(),
		Runner:    f,
		Passwords: fixedPasswords{value: "secret"},
		Log:       zerolog.Nop(),
		Cfg:       cfg,
	}
}

func TestRunHostScope(t *testing.T) {
	f := &fakeRunner{}
	cfg := baseConfig()
	cfg.Nodes = []string{"node1", "node2"}
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Host scope mints one authority per node.
	if n := f.count("openssl req"); n != 2 {
		t.Fatalf("expected 2 authorities, got %d:\n%s", n, strings.Join(f.calls, "\n"))
	}
	if n := f.count("openssl req", "CN=rootCA-node1"); n != 1 {
		t.Fatalf("expected authority subject for node1, got %d", n)
	}
	// Each authority lands in the shared truststore.
	if n := f.count("keytool -importcert", "/out/truststore.jks"); n != 2 {
		t.Fatalf("expected 2 truststore imports, got %d", n)
	}
	// One signed certificate per node.
	if n := f.count("openssl x509 -req"); n != 2 {
		t.Fatalf("expected 2 signings, got %d", n)
	}
	if n := f.count("keytool -genkeypair", "/out/keystore_node1.jks"); n != 1 {
		t.Fatalf("expected keystore for node1, got %d", n)
	}
	if n := f.count("keytool -genkeypair", "-dname CN=node1, O=example, C=US"); n != 1 {
		t.Fatalf("keypair subject must use the keytool dn form:\n%s", strings.Join(f.calls, "\n"))
	}
}

func TestRunClusterScope(t *testing.T) {
	f := &fakeRunner{}
	cfg := baseConfig()
	cfg.Scope = ScopeCluster
	cfg.Nodes = []string{"node1", "node2", "node3"}
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Cluster scope shares one authority across all nodes.
	if n := f.count("openssl req"); n != 1 {
		t.Fatalf("expected 1 authority, got %d", n)
	}
	if n := f.count("openssl req", "CN=rootCA-cluster"); n != 1 {
		t.Fatalf("expected cluster authority subject, got %d", n)
	}
	if n := f.count("keytool -importcert", "/out/truststore.jks"); n != 1 {
		t.Fatalf("expected 1 truststore import, got %d", n)
	}
	if n := f.count("keytool -genkeypair"); n != 3 {
		t.Fatalf("expected 3 keystores, got %d", n)
	}
}

func TestRunInvalidScope(t *testing.T) {
	cfg := baseConfig()
	cfg.Scope = "rack"
	err := newGenerator(&fakeRunner{}, cfg).Run(context.Background())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestRunInvalidKeystoreTemplate(t *testing.T) {
	for _, tmpl := range []string{"keystore.jks", "keystore_%s_%s.jks", "keystore_%d.jks"} {
		cfg := baseConfig()
		cfg.KeystoreTemplate = tmpl
		err := newGenerator(&fakeRunner{}, cfg).Run(context.Background())
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("template %q: expected ErrConfig, got %v", tmpl, err)
		}
	}
}

func TestRunEmptyDN(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/etc/cmu/ca.yaml", []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := baseConfig()
	cfg.DN = ""
	g := newGenerator(&fakeRunner{}, cfg)
	g.Fs = fs
	err := g.Run(context.Background())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for empty dn, got %v", err)
	}
}

func TestRunRecordsPasswords(t *testing.T) {
	f := &fakeRunner{}
	cfg := baseConfig()
	cfg.Nodes = []string{"node1"}
	cfg.AutoPassword = false
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := afero.ReadFile(g.Fs, "/out/stores.password")
	if err != nil {
		t.Fatalf("read password file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 password records, got %v", lines)
	}
	if lines[0] != "truststore.jks:secret" {
		t.Fatalf("unexpected truststore record: %q", lines[0])
	}
	if lines[1] != "keystore_node1.jks:secret" {
		t.Fatalf("unexpected keystore record: %q", lines[1])
	}
}

func TestRunAutoPasswordsDiffer(t *testing.T) {
	f := &fakeRunner{}
	cfg := baseConfig()
	cfg.Nodes = []string{"node1", "node2"}
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := afero.ReadFile(g.Fs, "/out/stores.password")
	if err != nil {
		t.Fatalf("read password file: %v", err)
	}
	seen := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 || kv[1] == "" {
			t.Fatalf("malformed record %q", line)
		}
		if seen[kv[1]] {
			t.Fatalf("generated passwords must be unique, %q repeated", kv[1])
		}
		seen[kv[1]] = true
	}
}

func TestRunExistingTruststore(t *testing.T) {
	f := &fakeRunner{}
	cfg := baseConfig()
	cfg.Nodes = []string{"node1"}
	cfg.ExistingTruststore = "/etc/cassandra/truststore.jks"
	cfg.ExistingTruststorePassword = "oldpw"
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := f.count("keytool -importcert", "/etc/cassandra/truststore.jks", "-storepass oldpw"); n != 1 {
		t.Fatalf("expected import into existing truststore:\n%s", strings.Join(f.calls, "\n"))
	}
}

func TestRunExistingTruststorePasswordRequired(t *testing.T) {
	cfg := baseConfig()
	cfg.Nodes = []string{"node1"}
	cfg.ExistingTruststore = "/etc/cassandra/truststore.jks"
	g := newGenerator(&fakeRunner{}, cfg)
	g.Passwords = nil
	err := g.Run(context.Background())
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig when existing password unavailable, got %v", err)
	}
}

func TestRunAbortsOnToolFailure(t *testing.T) {
	f := &fakeRunner{errs: map[string]error{"-certreq": errors.New("keytool error")}}
	cfg := baseConfig()
	cfg.Nodes = []string{"node1", "node2"}
	g := newGenerator(f, cfg)
	if err := g.Run(context.Background()); err == nil {
		t.Fatalf("expected error when signing request fails")
	}
	if n := f.count("keytool -genkeypair"); n != 1 {
		t.Fatalf("run must stop at the first failure, got %d keypairs", n)
	}
}
