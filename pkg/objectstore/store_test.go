package objectstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/revise/pkg/object"
)

func tempGitDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "objects"), 0o755); err != nil {
		t.Fatalf("mkdir objects: %v", err)
	}
	return dir
}

func TestNewObjectDeduplicates(t *testing.T) {
	s, err := New(tempGitDir(t), object.AlgoSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h1, err := s.NewBlob([]byte("hello"))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}
	h2, err := s.NewBlob([]byte("hello"))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("OIDs for identical content differ: %s != %s", h1, h2)
	}
	if len(s.unpersisted) != 1 {
		t.Fatalf("unpersisted count = %d, want 1", len(s.unpersisted))
	}
}

func TestGetRoundTripsUnpersistedObject(t *testing.T) {
	s, err := New(tempGitDir(t), object.AlgoSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := s.NewBlob([]byte("unflushed"))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}

	got, err := s.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Blob.Data) != "unflushed" {
		t.Fatalf("Blob.Data = %q, want %q", got.Blob.Data, "unflushed")
	}
}

func TestFlushPersistsBlobTreeAndCommit(t *testing.T) {
	gitDir := tempGitDir(t)
	s, err := New(gitDir, object.AlgoSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	blobOID, err := s.NewBlob([]byte("contents"))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}
	treeOID, err := s.NewTree([]object.TreeEntry{{Name: "file.txt", Mode: object.ModeFile, OID: blobOID}})
	if err != nil {
		t.Fatalf("NewTree: %v", err)
	}
	commitOID, err := s.NewCommit(&object.Commit{
		Tree:      treeOID,
		Author:    object.Signature{Raw: "a <a@example.com> 0 +0000"},
		Committer: object.Signature{Raw: "a <a@example.com> 0 +0000"},
		Message:   []byte("msg\n"),
	})
	if err != nil {
		t.Fatalf("NewCommit: %v", err)
	}

	if err := s.Flush(commitOID); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	for _, oid := range []object.Hash{blobOID, treeOID, commitOID} {
		if !s.persisted[oid] {
			t.Errorf("object %s not marked persisted after flush", oid)
		}
		if _, ok := s.unpersisted[oid]; ok {
			t.Errorf("object %s still buffered as unpersisted after flush", oid)
		}
		path := filepath.Join(gitDir, "objects", string(oid[:2]), string(oid[2:]))
		if _, err := os.Stat(path); err != nil {
			t.Errorf("object %s not written to %s: %v", oid, path, err)
		}
	}

	// Flush must be idempotent: re-running over the same root succeeds and
	// does not touch objects already on disk.
	if err := s.Flush(commitOID); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
}

func TestGetMissingObject(t *testing.T) {
	s, err := New(tempGitDir(t), object.AlgoSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = s.Get(object.Hash("ab" + string(make([]byte, 62))))
	if err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestGetAbbrevResolvesUniquePrefix(t *testing.T) {
	s, err := New(tempGitDir(t), object.AlgoSHA256)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// With a single buffered object, an 8-character prefix of its OID is
	// unique and resolves to that object. The ambiguous case (two OIDs
	// sharing a prefix) is not exercised here.
	h, err := s.NewBlob([]byte("only one"))
	if err != nil {
		t.Fatalf("NewBlob: %v", err)
	}

	oid, o, err := s.GetAbbrev(string(h[:8]))
	if err != nil {
		t.Fatalf("GetAbbrev: %v", err)
	}
	if oid != h {
		t.Fatalf("GetAbbrev resolved to %s, want %s", oid, h)
	}
	if o.Kind != object.KindBlob {
		t.Fatalf("GetAbbrev kind = %s, want blob", o.Kind)
	}
}
