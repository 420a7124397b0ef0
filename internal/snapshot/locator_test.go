package snapshot

import (
	"testing"

	"github.com/spf13/afero"
)

const dataDir = "/var/lib/cassandra/data"

func seedSnapshot(fs afero.Fs, keyspace, tableDir, tag string) {
	_ = fs.MkdirAll(dataDir+"/"+keyspace+"/"+tableDir+"/snapshots/"+tag, 0o755)
}

func locate(t *testing.T, fs afero.Fs, tag string, include, exclude []string) []Dir {
	t.Helper()
	l := &Locator{Fs: fs, DataDir: dataDir, Tag: tag, Include: include, Exclude: exclude}
	dirs, err := l.Locate()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return dirs
}

func TestLocateExcludeToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSnapshot(fs, "ks1", "t1-xyz", "snap1")
	seedSnapshot(fs, "ks2", "t2-abc", "snap1")

	dirs := locate(t, fs, "snap1", nil, []string{"ks1.t1"})
	if len(dirs) != 1 {
		t.Fatalf("expected 1 directory, got %d", len(dirs))
	}
	if dirs[0].Keyspace != "ks2" || dirs[0].Table != "t2" {
		t.Fatalf("unexpected match: %+v", dirs[0])
	}
	if dirs[0].Path != dataDir+"/ks2/t2-abc/snapshots/snap1" {
		t.Fatalf("unexpected path: %s", dirs[0].Path)
	}
}

func TestLocateSystemKeyspacesAlwaysExcluded(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, ks := range []string{"system", "system_auth", "system_traces", "ks1"} {
		seedSnapshot(fs, ks, "t1-abc", "snap1")
	}

	dirs := locate(t, fs, "snap1", nil, []string{"ks9"})
	for _, d := range dirs {
		if d.Keyspace == "system" || d.Keyspace == "system_auth" || d.Keyspace == "system_traces" {
			t.Fatalf("system keyspace leaked into result: %s", d.Keyspace)
		}
	}
	if len(dirs) != 1 || dirs[0].Keyspace != "ks1" {
		t.Fatalf("unexpected result: %+v", dirs)
	}
}

func TestLocateExcludeWinsOverInclude(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSnapshot(fs, "ks1", "t1-xyz", "snap1")
	seedSnapshot(fs, "ks1", "t2-xyz", "snap1")

	dirs := locate(t, fs, "snap1", []string{"ks1"}, []string{"ks1.t1"})
	if len(dirs) != 1 || dirs[0].Table != "t2" {
		t.Fatalf("expected only ks1.t2, got %+v", dirs)
	}

	dirs = locate(t, fs, "snap1", []string{"ks1"}, []string{"ks1"})
	if len(dirs) != 0 {
		t.Fatalf("whole-keyspace exclude must override include, got %+v", dirs)
	}
}

func TestLocateIncludeTableToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSnapshot(fs, "ks1", "t1-xyz", "snap1")
	seedSnapshot(fs, "ks1", "t2-xyz", "snap1")
	seedSnapshot(fs, "ks2", "t3-xyz", "snap1")

	dirs := locate(t, fs, "snap1", []string{"ks1.t1"}, nil)
	if len(dirs) != 1 || dirs[0].Keyspace != "ks1" || dirs[0].Table != "t1" {
		t.Fatalf("expected only ks1.t1, got %+v", dirs)
	}
	// The table token expands to the on-disk directory with its suffix.
	if dirs[0].TableDir != "t1-xyz" {
		t.Fatalf("expected table dir t1-xyz, got %s", dirs[0].TableDir)
	}
}

func TestLocateTagMismatch(t *testing.T) {
	fs := afero.NewMemMapFs()
	seedSnapshot(fs, "ks1", "t1-xyz", "other")

	dirs := locate(t, fs, "snap1", nil, nil)
	if len(dirs) != 0 {
		t.Fatalf("expected empty result for unmatched tag, got %+v", dirs)
	}
}

func TestLocateEmptyResultIsNotError(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = fs.MkdirAll(dataDir, 0o755)

	dirs := locate(t, fs, "snap1", nil, nil)
	if len(dirs) != 0 {
		t.Fatalf("expected no directories, got %+v", dirs)
	}
}
