// Package transfer implements the snapshot transfer orchestrator and
// the conflict resolution that runs against the remote table
// directories.
package transfer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	humanize "github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/cassandra-maint-utility/internal/prompt"
	"github.com/rowjay/cassandra-maint-utility/internal/remote"
	"github.com/rowjay/cassandra-maint-utility/internal/snapshot"
)

const (
	scratchDirName = "cmu-incoming"
	helperName     = "cmu-relocate.sh"
)

// Orchestrator pushes located snapshot directories to a remote node.
type Orchestrator struct {
	Fs      afero.Fs
	Client  *remote.Client
	Confirm prompt.Confirmer
	Log     zerolog.Logger

	RemoteDataDir string
	BWLimitKBps   int
	Direct        bool
	Policy        Policy
}

// Run transfers every job sequentially. Any failure of the underlying
// copy mechanism aborts the whole run; nothing is retried and files
// already moved stay moved.
func (o *Orchestrator) Run(ctx context.Context, jobs []snapshot.Dir) error {
	if len(jobs) == 0 {
		o.Log.Info().Msg("nothing to copy")
		return nil
	}

	size, err := o.totalSize(ctx, jobs)
	if err != nil {
		return err
	}
	mode := "indirect"
	if o.Direct {
		mode = "direct"
	}
	ok, err := o.Confirm.Confirm(fmt.Sprintf(
		"Copy %d snapshot director(ies), %s, to %s (%s mode)",
		len(jobs), humanize.Bytes(uint64(size)), o.Client.Endpoint.Host, mode))
	if err != nil {
		return err
	}
	if !ok {
		o.Log.Warn().Msg("transfer aborted by operator")
		return nil
	}

	if o.Direct {
		for _, job := range jobs {
			if err := o.direct(ctx, job); err != nil {
				return err
			}
		}
		return nil
	}
	return o.indirect(ctx, jobs)
}

// direct copies straight into the destination table directory after
// unconditionally removing same-named files there (last-writer-wins).
func (o *Orchestrator) direct(ctx context.Context, job snapshot.Dir) error {
	destDir, err := o.Client.ResolveTableDir(ctx, o.RemoteDataDir, job.Keyspace, job.Table)
	if err != nil {
		return err
	}
	incoming, err := o.localFiles(job.Path)
	if err != nil {
		return err
	}
	existing, err := o.Client.ListDir(ctx, destDir)
	if err != nil {
		return err
	}
	existingSet := map[string]bool{}
	for _, name := range existing {
		existingSet[name] = true
	}
	var conflicts []string
	for _, name := range incoming {
		if existingSet[name] {
			conflicts = append(conflicts, destDir+"/"+name)
		}
	}
	if len(conflicts) > 0 {
		o.Log.Info().Int("files", len(conflicts)).Str("table", job.Keyspace+"."+job.Table).
			Msg("removing conflicting destination files")
		if err := o.Client.Remove(ctx, false, conflicts...); err != nil {
			return err
		}
	}
	o.Log.Info().Str("table", job.Keyspace+"."+job.Table).Str("dest", destDir).Msg("copying snapshot")
	return o.Client.Rsync(ctx, job.Path, destDir, o.BWLimitKBps)
}

// indirect stages every snapshot into a remote scratch directory, then
// executes one generated helper script that relocates the files into
// their table directories, rewriting colliding generation numbers when
// the policy is preserve.
func (o *Orchestrator) indirect(ctx context.Context, jobs []snapshot.Dir) error {
	scratchRoot := o.RemoteDataDir + "/" + scratchDirName
	helperPath := o.RemoteDataDir + "/" + helperName

	var plans []TablePlan
	for _, job := range jobs {
		destDir, err := o.Client.ResolveTableDir(ctx, o.RemoteDataDir, job.Keyspace, job.Table)
		if err != nil {
			return err
		}
		scratch := scratchRoot + "/" + job.Keyspace + "/" + job.TableDir
		if err := o.Client.Mkdir(ctx, scratch); err != nil {
			return err
		}
		o.Log.Info().Str("table", job.Keyspace+"."+job.Table).Str("scratch", scratch).Msg("staging snapshot")
		if err := o.Client.Rsync(ctx, job.Path, scratch, o.BWLimitKBps); err != nil {
			return err
		}

		incoming, err := o.localFiles(job.Path)
		if err != nil {
			return err
		}
		existing, err := o.Client.ListDir(ctx, destDir)
		if err != nil {
			return err
		}
		plan, err := BuildPlan(incoming, existing, o.Policy)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", job.Keyspace, job.Table, err)
		}
		if plan.Renamed() {
			o.Log.Info().Str("table", job.Keyspace+"."+job.Table).
				Msg("generation collisions detected, incoming files will be renamed")
		}
		plans = append(plans, TablePlan{
			Keyspace:   job.Keyspace,
			Table:      job.Table,
			ScratchDir: scratch,
			DestDir:    destDir,
			Plan:       plan,
		})
	}

	script := RenderScript(plans)
	if err := o.Client.PutFile(ctx, []byte(script), helperPath); err != nil {
		return fmt.Errorf("push helper script: %w", err)
	}
	if err := o.Client.Run(ctx, "sh", helperPath); err != nil {
		return fmt.Errorf("relocate staged files: %w", err)
	}

	ok, err := o.Confirm.Confirm(fmt.Sprintf("Remove remote scratch directory %s and helper script", scratchRoot))
	if err != nil {
		return err
	}
	if !ok {
		o.Log.Warn().Str("scratch", scratchRoot).Msg("scratch directory left on remote host")
		return nil
	}
	if err := o.Client.Remove(ctx, true, scratchRoot, helperPath); err != nil {
		o.Log.Error().Err(err).Msg("failed to remove remote scratch directory")
		return err
	}
	return nil
}

func (o *Orchestrator) localFiles(dir string) ([]string, error) {
	entries, err := afero.ReadDir(o.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (o *Orchestrator) totalSize(ctx context.Context, jobs []snapshot.Dir) (int64, error) {
	var total int64
	eg, _ := errgroup.WithContext(ctx)
	for _, job := range jobs {
		eg.Go(func() error {
			return afero.Walk(o.Fs, job.Path, func(_ string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() {
					atomic.AddInt64(&total, info.Size())
				}
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}
