package snapshot

import (
	"fmt"
	"strconv"
	"strings"
)

// Descriptor is the structured form of an SSTable component filename.
//
// Two on-disk layouts exist. The legacy layout carries the keyspace and
// table in the filename:
//
//	ks1-t1-jb-5-Data.db
//
// The modern layout drops them (they are implied by directory placement)
// and adds a storage format token:
//
//	ma-5-big-Data.db
type Descriptor struct {
	Keyspace   string
	Table      string
	Version    string
	Generation int
	Format     string // "big"/"bti" in the modern layout, empty in legacy
	Component  string // e.g. Data.db, Index.db, TOC.txt
}

// Parse decodes an SSTable component filename. ok is false for files
// that do not follow either naming layout.
func Parse(name string) (d Descriptor, ok bool) {
	parts := strings.Split(name, "-")
	switch len(parts) {
	case 4:
		// version-generation-format-Component
		gen, err := strconv.Atoi(parts[1])
		if err != nil {
			return Descriptor{}, false
		}
		return Descriptor{
			Version:    parts[0],
			Generation: gen,
			Format:     parts[2],
			Component:  parts[3],
		}, true
	case 5:
		// keyspace-table-version-generation-Component
		gen, err := strconv.Atoi(parts[3])
		if err != nil {
			return Descriptor{}, false
		}
		return Descriptor{
			Keyspace:   parts[0],
			Table:      parts[1],
			Version:    parts[2],
			Generation: gen,
			Component:  parts[4],
		}, true
	default:
		return Descriptor{}, false
	}
}

// Filename renders the descriptor back into its on-disk name.
func (d Descriptor) Filename() string {
	if d.Format != "" {
		return fmt.Sprintf("%s-%d-%s-%s", d.Version, d.Generation, d.Format, d.Component)
	}
	return fmt.Sprintf("%s-%s-%s-%d-%s", d.Keyspace, d.Table, d.Version, d.Generation, d.Component)
}

// GroupKey identifies the file group a component belongs to. Every
// component of one SSTable shares the key.
func (d Descriptor) GroupKey() string {
	if d.Format != "" {
		return fmt.Sprintf("%s-%d-%s", d.Version, d.Generation, d.Format)
	}
	return fmt.Sprintf("%s-%s-%s-%d", d.Keyspace, d.Table, d.Version, d.Generation)
}

// WithGeneration returns a copy of the descriptor carrying a rewritten
// generation number.
func (d Descriptor) WithGeneration(gen int) Descriptor {
	d.Generation = gen
	return d
}

// NextFreeGeneration resolves a generation-number collision by
// multiplying the generation by ten until it is absent from taken.
func NextFreeGeneration(gen int, taken map[int]bool) int {
	if gen < 1 {
		gen = 1
	}
	next := gen * 10
	for taken[next] {
		next *= 10
	}
	return next
}
