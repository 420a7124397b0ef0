package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/rowjay/cassandra-maint-utility/internal/archive"
	"github.com/rowjay/cassandra-maint-utility/internal/config"
	"github.com/rowjay/cassandra-maint-utility/internal/lock"
	"github.com/rowjay/cassandra-maint-utility/internal/notify"
	"github.com/rowjay/cassandra-maint-utility/internal/prompt"
	"github.com/rowjay/cassandra-maint-utility/internal/remote"
	"github.com/rowjay/cassandra-maint-utility/internal/runner"
	"github.com/rowjay/cassandra-maint-utility/internal/snapshot"
	"github.com/rowjay/cassandra-maint-utility/internal/storage"
	"github.com/rowjay/cassandra-maint-utility/internal/stores"
	"github.com/rowjay/cassandra-maint-utility/internal/transfer"
	"github.com/rowjay/cassandra-maint-utility/internal/util"
)

// App wires configuration and capabilities into the maintenance
// workflows.
type App struct {
	Cfg       *config.Config
	Fs        afero.Fs
	Runner    runner.Runner
	Confirm   prompt.Confirmer
	Passwords prompt.PasswordReader
	Log       zerolog.Logger
	Notifier  notify.Notifier
}

func New(cfg *config.Config, fs afero.Fs, run runner.Runner, confirm prompt.Confirmer, passwords prompt.PasswordReader, log zerolog.Logger, notifier notify.Notifier) *App {
	return &App{Cfg: cfg, Fs: fs, Runner: run, Confirm: confirm, Passwords: passwords, Log: log, Notifier: notifier}
}

// Copy runs the snapshot copy workflow: locate, transfer, resolve.
func (a *App) Copy(ctx context.Context) error {
	start := time.Now()
	var opErr error
	defer a.notify("copy", a.Cfg.Copy.RemoteHost, a.Cfg.Copy.Tag, start, &opErr)

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		opErr = err
		return err
	}
	defer guard.Release()

	if err := a.checkWindow(); err != nil {
		opErr = err
		return err
	}
	if !a.Cfg.Global.AllowMissingTools {
		for _, bin := range []string{"rsync", "ssh"} {
			if err := runner.RequireBinary(bin); err != nil {
				opErr = err
				return err
			}
		}
	}

	jobs, err := a.locate(a.Cfg.Copy.DataDir, a.Cfg.Copy.Tag, a.Cfg.Copy.Include, a.Cfg.Copy.Exclude)
	if err != nil {
		opErr = err
		return err
	}

	policy := transfer.PolicyPreserve
	if a.Cfg.Copy.Overwrite {
		policy = transfer.PolicyOverwrite
	}
	orch := &transfer.Orchestrator{
		Fs: a.Fs,
		Client: &remote.Client{
			Runner: a.Runner,
			Endpoint: remote.Endpoint{
				User: a.Cfg.Copy.RemoteUser,
				Host: a.Cfg.Copy.RemoteHost,
				Port: a.Cfg.Copy.SSHPort,
			},
		},
		Confirm:       a.Confirm,
		Log:           a.Log,
		RemoteDataDir: a.Cfg.Copy.RemoteDataDir,
		BWLimitKBps:   a.Cfg.Copy.BWLimitKBps,
		Direct:        a.Cfg.Copy.Direct,
		Policy:        policy,
	}
	if err := orch.Run(ctx, jobs); err != nil {
		opErr = err
		return err
	}
	return nil
}

// Archive streams located snapshots into the configured storage
// backend.
func (a *App) Archive(ctx context.Context) (*archive.Result, error) {
	start := time.Now()
	var opErr error
	defer a.notify("archive", "", a.Cfg.Copy.Tag, start, &opErr)

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		opErr = err
		return nil, err
	}
	defer guard.Release()

	if err := a.checkWindow(); err != nil {
		opErr = err
		return nil, err
	}

	jobs, err := a.locate(a.Cfg.Copy.DataDir, a.Cfg.Copy.Tag, a.Cfg.Copy.Include, a.Cfg.Copy.Exclude)
	if err != nil {
		opErr = err
		return nil, err
	}

	store, err := storage.New(a.Cfg.Storage)
	if err != nil {
		opErr = err
		return nil, err
	}
	arch := &archive.Archiver{
		Fs:      a.Fs,
		Storage: store,
		Log:     a.Log,
		Cfg:     a.Cfg.Archive,
		Prefix:  a.Cfg.Storage.Prefix,
	}
	res, err := arch.Run(ctx, a.Cfg.Copy.Tag, jobs)
	if err != nil {
		opErr = err
		return nil, err
	}
	return res, nil
}

// GenerateStores builds the TLS keystores and truststore.
func (a *App) GenerateStores(ctx context.Context) error {
	start := time.Now()
	var opErr error
	defer a.notify("stores", "", "", start, &opErr)

	guard, err := lock.Acquire(a.Cfg.Global.LockFile)
	if err != nil {
		opErr = err
		return err
	}
	defer guard.Release()

	if !a.Cfg.Global.AllowMissingTools {
		for _, bin := range []string{"openssl", "keytool"} {
			if err := runner.RequireBinary(bin); err != nil {
				opErr = err
				return err
			}
		}
	}

	gen := &stores.Generator{
		Fs:        a.Fs,
		Runner:    a.Runner,
		Passwords: a.Passwords,
		Log:       a.Log,
		Cfg:       a.Cfg.Stores,
	}
	if err := gen.Run(ctx); err != nil {
		opErr = err
		return err
	}
	return nil
}

func (a *App) locate(dataDir, tag string, include, exclude []string) ([]snapshot.Dir, error) {
	locator := &snapshot.Locator{
		Fs:      a.Fs,
		DataDir: dataDir,
		Tag:     tag,
		Include: include,
		Exclude: exclude,
	}
	jobs, err := locator.Locate()
	if err != nil {
		return nil, fmt.Errorf("locate snapshots: %w", err)
	}
	a.Log.Info().Int("directories", len(jobs)).Str("tag", tag).Msg("snapshot directories located")
	return jobs, nil
}

func (a *App) checkWindow() error {
	ok, err := util.InWindow(time.Now(), a.Cfg.Schedule.WindowStart, a.Cfg.Schedule.WindowEnd, a.Cfg.Schedule.Timezone)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("current time is outside the configured maintenance window")
	}
	return nil
}

func (a *App) notify(kind, host, tag string, start time.Time, opErr *error) {
	if a.Notifier == nil {
		return
	}
	event := notify.Event{
		Type:      kind,
		Message:   fmt.Sprintf("%s run", kind),
		Status:    statusFromErr(*opErr),
		Host:      host,
		Tag:       tag,
		StartedAt: start,
		EndedAt:   time.Now(),
		Duration:  time.Since(start).String(),
	}
	if *opErr != nil {
		event.Error = (*opErr).Error()
	}
	_ = a.Notifier.Notify(context.Background(), event)
}

func statusFromErr(err error) string {
	if err == nil {
		return "success"
	}
	return "failed"
}
