package util

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// BuildArchiveKey constructs a normalized object key for a snapshot
// archive: <prefix>/<cluster>/<tag>/<timestamp>.tar<ext>.
func BuildArchiveKey(prefix, cluster, tag string, when time.Time, extension string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if cluster != "" {
		parts = append(parts, cluster)
	}
	parts = append(parts, tag)
	name := fmt.Sprintf("%s.tar", when.UTC().Format("20060102T150405Z"))
	if extension != "" {
		name += extension
	}
	parts = append(parts, name)
	return path.Join(parts...)
}

// BuildArchivePrefix builds the prefix for listing archives of a cluster.
func BuildArchivePrefix(prefix, cluster string) string {
	parts := []string{}
	if prefix != "" {
		parts = append(parts, strings.Trim(prefix, "/"))
	}
	if cluster != "" {
		parts = append(parts, cluster)
	}
	return path.Join(parts...)
}
