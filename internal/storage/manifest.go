package storage

import "time"

const ManifestSuffix = ".manifest.json"

// Manifest is the sidecar record written next to a snapshot archive.
type Manifest struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Cluster     string    `json:"cluster,omitempty"`
	Tag         string    `json:"tag"`
	Keyspaces   []string  `json:"keyspaces,omitempty"`
	Compression string    `json:"compression"`
	Encryption  bool      `json:"encryption"`
	CreatedAt   time.Time `json:"created_at"`
	SizeBytes   int64     `json:"size_bytes"`
	ToolVersion string    `json:"tool_version"`
}

func ManifestKey(objectKey string) string {
	return objectKey + ManifestSuffix
}
