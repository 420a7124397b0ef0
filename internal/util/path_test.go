package util

import (
	"testing"
	"time"
)

func TestBuildArchiveKey(t *testing.T) {
	when := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	got := BuildArchiveKey("/backups/", "prod", "snap1", when, ".zst")
	want := "backups/prod/snap1/20240315T093000Z.tar.zst"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildArchiveKeyMinimal(t *testing.T) {
	when := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	got := BuildArchiveKey("", "", "snap1", when, "")
	if got != "snap1/20240315T093000Z.tar" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildArchivePrefix(t *testing.T) {
	if got := BuildArchivePrefix("/backups/", "prod"); got != "backups/prod" {
		t.Fatalf("got %q", got)
	}
	if got := BuildArchivePrefix("", "prod"); got != "prod" {
		t.Fatalf("got %q", got)
	}
}
