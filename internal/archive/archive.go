// Package archive streams located snapshot directories into a tar
// archive, through optional compression and encryption, into an object
// storage backend.
package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/rowjay/cassandra-maint-utility/internal/compress"
	"github.com/rowjay/cassandra-maint-utility/internal/config"
	"github.com/rowjay/cassandra-maint-utility/internal/cryptoutil"
	"github.com/rowjay/cassandra-maint-utility/internal/snapshot"
	"github.com/rowjay/cassandra-maint-utility/internal/storage"
	"github.com/rowjay/cassandra-maint-utility/internal/util"
	"github.com/rowjay/cassandra-maint-utility/internal/version"
)

type Archiver struct {
	Fs      afero.Fs
	Storage storage.Storage
	Log     zerolog.Logger
	Cfg     config.ArchiveConfig
	Prefix  string // storage key prefix
}

type Result struct {
	Manifest storage.Manifest
	Key      string
}

// Run archives the snapshot directories under one object key. The
// upload is retried per the configured policy; the copy workflow never
// is.
func (a *Archiver) Run(ctx context.Context, tag string, jobs []snapshot.Dir) (*Result, error) {
	if len(jobs) == 0 {
		a.Log.Info().Msg("nothing to archive")
		return nil, nil
	}
	if a.Cfg.Encryption && a.Cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("encryption is enabled but encryption_key is empty")
	}

	ext := compress.Extension(a.Cfg.Compression)
	if a.Cfg.Encryption {
		ext += ".enc"
	}
	key := util.BuildArchiveKey(a.Prefix, a.Cfg.Cluster, tag, time.Now(), ext)

	err := util.Retry(ctx, a.Cfg.RetryCount, a.Cfg.RetryBackoff, func() error {
		return a.stream(ctx, key, jobs)
	})
	if err != nil {
		return nil, err
	}

	stat, err := a.Storage.Stat(ctx, key)
	if err != nil {
		return nil, err
	}
	manifest := storage.Manifest{
		ID:          fmt.Sprintf("%s-%d", tag, time.Now().UnixNano()),
		Key:         key,
		Cluster:     a.Cfg.Cluster,
		Tag:         tag,
		Keyspaces:   keyspaces(jobs),
		Compression: a.Cfg.Compression,
		Encryption:  a.Cfg.Encryption,
		CreatedAt:   time.Now().UTC(),
		SizeBytes:   stat.Size,
		ToolVersion: version.Version,
	}
	if err := a.writeManifest(ctx, manifest); err != nil {
		a.Log.Warn().Err(err).Msg("failed to write manifest")
	}
	a.Log.Info().Str("key", key).Str("size", humanize.Bytes(uint64(stat.Size))).Msg("archive uploaded")
	return &Result{Manifest: manifest, Key: key}, nil
}

// stream runs the tar -> compress -> encrypt -> storage pipeline with
// the producer and uploader on either side of a pipe.
func (a *Archiver) stream(ctx context.Context, key string, jobs []snapshot.Dir) error {
	pipeReader, pipeWriter := io.Pipe()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer pipeReader.Close()
		return a.Storage.Put(egCtx, key, pipeReader, -1, map[string]string{"cmu-archive": "true"})
	})

	eg.Go(func() error {
		writer := io.Writer(pipeWriter)
		closers := []io.Closer{}
		if a.Cfg.Encryption {
			keyBytes, err := cryptoutil.ParseKey(a.Cfg.EncryptionKey)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			encWriter, err := cryptoutil.EncryptWriter(writer, keyBytes)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = encWriter
			closers = append(closers, encWriter)
		}
		if a.Cfg.Compression != "" && a.Cfg.Compression != compress.TypeNone {
			compWriter, err := compress.WrapWriter(a.Cfg.Compression, writer)
			if err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
			writer = compWriter
			closers = append(closers, compWriter)
		}

		tw := tar.NewWriter(writer)
		if err := a.writeTar(tw, jobs); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		if err := tw.Close(); err != nil {
			_ = pipeWriter.CloseWithError(err)
			return err
		}
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				_ = pipeWriter.CloseWithError(err)
				return err
			}
		}
		return pipeWriter.Close()
	})

	return eg.Wait()
}

func (a *Archiver) writeTar(tw *tar.Writer, jobs []snapshot.Dir) error {
	for _, job := range jobs {
		base := path.Join(job.Keyspace, job.Table)
		err := afero.Walk(a.Fs, job.Path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel := strings.TrimPrefix(strings.TrimPrefix(p, job.Path), "/")
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = path.Join(base, rel)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := a.Fs.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		})
		if err != nil {
			return fmt.Errorf("archive %s.%s: %w", job.Keyspace, job.Table, err)
		}
	}
	return nil
}

func (a *Archiver) writeManifest(ctx context.Context, manifest storage.Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	key := storage.ManifestKey(manifest.Key)
	return a.Storage.Put(ctx, key, strings.NewReader(string(payload)), int64(len(payload)), map[string]string{"cmu-manifest": "true"})
}

func keyspaces(jobs []snapshot.Dir) []string {
	seen := map[string]bool{}
	var out []string
	for _, job := range jobs {
		if !seen[job.Keyspace] {
			seen[job.Keyspace] = true
			out = append(out, job.Keyspace)
		}
	}
	return out
}
