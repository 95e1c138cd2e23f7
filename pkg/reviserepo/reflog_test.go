package reviserepo

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/odvcencio/revise/pkg/object"
)

func TestUpdateRefCAS_WritesReflog(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	h1 := object.Hash("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	h2 := object.Hash("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	if err := r.UpdateRefCAS("refs/heads/main", "", h1, ReflogReason("", "first")); err != nil {
		t.Fatalf("UpdateRefCAS(h1): %v", err)
	}
	if err := r.UpdateRefCAS("refs/heads/main", h1, h2, ReflogReason(h1, "second")); err != nil {
		t.Fatalf("UpdateRefCAS(h2): %v", err)
	}

	entries, err := r.ReadReflog("main", 10)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected at least 2 reflog entries, got %d", len(entries))
	}
	if entries[0].NewHash != h2 {
		t.Fatalf("latest reflog new hash = %q, want %q", entries[0].NewHash, h2)
	}
	if entries[1].NewHash != h1 {
		t.Fatalf("previous reflog new hash = %q, want %q", entries[1].NewHash, h1)
	}
	if got := entries[0].Reason; got == "" {
		t.Fatalf("expected non-empty reflog reason")
	}

	assertFile(t, filepath.Join(r.GitDir, "logs", "refs", "heads", "main"))
}

func TestReadReflog_RespectsLimit(t *testing.T) {
	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	prev := object.Hash("")
	for i := 0; i < 5; i++ {
		h := object.Hash(fmt.Sprintf("%064x", i+1))
		if err := r.UpdateRefCAS("refs/heads/main", prev, h, ReflogReason(prev, "step")); err != nil {
			t.Fatalf("UpdateRefCAS(%d): %v", i, err)
		}
		prev = h
	}

	entries, err := r.ReadReflog("main", 2)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries length = %d, want 2", len(entries))
	}
}

func TestReflogReason_Format(t *testing.T) {
	oid := object.Hash("abcdef0123456789abcdef0123456789abcdef01")
	got := ReflogReason(oid, "reword HEAD")
	want := "revise (abcdef0): reword HEAD"
	if got != want {
		t.Fatalf("ReflogReason = %q, want %q", got, want)
	}
}

func TestReadReflog_MissingRefReturnsNilNoError(t *testing.T) {
	r, err := Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	entries, err := r.ReadReflog("nonexistent", 0)
	if err != nil {
		t.Fatalf("ReadReflog: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries for missing reflog, got %v", entries)
	}
}
