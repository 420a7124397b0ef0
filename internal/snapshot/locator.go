package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Keyspaces that are never eligible for transfer, regardless of filters.
var systemKeyspaces = map[string]bool{
	"system":        true,
	"system_auth":   true,
	"system_traces": true,
}

// Dir is one snapshot directory eligible for transfer.
type Dir struct {
	Keyspace string
	Table    string // logical table name
	TableDir string // on-disk directory name, table plus id suffix
	Path     string // full path to the snapshots/<tag> directory
}

// Locator resolves which snapshot directories qualify for transfer.
type Locator struct {
	Fs      afero.Fs
	DataDir string
	Tag     string
	Include []string // keyspace or keyspace.table tokens
	Exclude []string
}

// filter maps keyspace to the set of requested tables; an empty set
// means the whole keyspace.
type filter map[string]map[string]bool

func parseFilter(tokens []string) filter {
	f := filter{}
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		ks, table := splitToken(tok)
		if _, ok := f[ks]; !ok {
			f[ks] = map[string]bool{}
		}
		if table != "" {
			f[ks][table] = true
		}
	}
	return f
}

func splitToken(tok string) (keyspace, table string) {
	parts := strings.SplitN(tok, ".", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// tableName splits the logical table name off an on-disk table
// directory, which is suffixed with an internal identifier.
func tableName(dir string) string {
	if idx := strings.Index(dir, "-"); idx >= 0 {
		return dir[:idx]
	}
	return dir
}

// Locate walks the data directory and returns the snapshot directories
// matching the tag after include/exclude filtering. An empty result is
// not an error. Ordering follows filesystem traversal order.
func (l *Locator) Locate() ([]Dir, error) {
	if l.Tag == "" {
		return nil, fmt.Errorf("snapshot tag must not be empty")
	}
	include := parseFilter(l.Include)
	exclude := parseFilter(l.Exclude)

	entries, err := afero.ReadDir(l.Fs, l.DataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var found []Dir
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		keyspace := entry.Name()
		if !l.keyspaceWanted(keyspace, include, exclude) {
			continue
		}
		tables, err := afero.ReadDir(l.Fs, filepath.Join(l.DataDir, keyspace))
		if err != nil {
			return nil, fmt.Errorf("read keyspace %s: %w", keyspace, err)
		}
		for _, tbl := range tables {
			if !tbl.IsDir() {
				continue
			}
			table := tableName(tbl.Name())
			if !l.tableWanted(keyspace, table, include, exclude) {
				continue
			}
			snapDir := filepath.Join(l.DataDir, keyspace, tbl.Name(), "snapshots", l.Tag)
			if ok, _ := afero.DirExists(l.Fs, snapDir); !ok {
				continue
			}
			found = append(found, Dir{
				Keyspace: keyspace,
				Table:    table,
				TableDir: tbl.Name(),
				Path:     snapDir,
			})
		}
	}
	return found, nil
}

func (l *Locator) keyspaceWanted(keyspace string, include, exclude filter) bool {
	if systemKeyspaces[keyspace] {
		return false
	}
	if tables, excluded := exclude[keyspace]; excluded && len(tables) == 0 {
		return false
	}
	if len(include) > 0 {
		if _, ok := include[keyspace]; !ok {
			return false
		}
	}
	return true
}

func (l *Locator) tableWanted(keyspace, table string, include, exclude filter) bool {
	if tables, ok := exclude[keyspace]; ok && (len(tables) == 0 || tables[table]) {
		return false
	}
	if len(include) > 0 {
		tables, ok := include[keyspace]
		if !ok {
			return false
		}
		if len(tables) > 0 && !tables[table] {
			return false
		}
	}
	return true
}
