package rerere

import (
	"path/filepath"
	"testing"
)

func TestNormalize_SortsHunksRegardlessOfSide(t *testing.T) {
	a := []byte("<<<<<<<\nalpha\n=======\nbeta\n>>>>>>>\n")
	b := []byte("<<<<<<<\nbeta\n=======\nalpha\n>>>>>>>\n")

	_, fpA, err := Normalize(a)
	if err != nil {
		t.Fatalf("Normalize(a): %v", err)
	}
	_, fpB, err := Normalize(b)
	if err != nil {
		t.Fatalf("Normalize(b): %v", err)
	}
	if fpA != fpB {
		t.Fatalf("fingerprints differ for swapped sides: %q vs %q", fpA, fpB)
	}
}

func TestNormalize_PreservesSurroundingContext(t *testing.T) {
	body := []byte("before\n<<<<<<<\nours\n=======\ntheirs\n>>>>>>>\nafter\n")
	normalized, _, err := Normalize(body)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if string(normalized[:len("before\n")]) != "before\n" {
		t.Fatalf("normalized dropped leading context: %q", normalized)
	}
	if got := string(normalized[len(normalized)-len("after\n"):]); got != "after\n" {
		t.Fatalf("normalized dropped trailing context: %q", got)
	}
}

func TestNormalize_RecursiveConflictBecomesOpaqueContent(t *testing.T) {
	body := []byte("<<<<<<<\n<<<<<<<\ninner ours\n=======\ninner theirs\n>>>>>>>\n=======\nouter theirs\n>>>>>>>\n")
	_, fp, err := Normalize(body)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if fp == "" {
		t.Fatal("expected a non-empty fingerprint")
	}
}

func TestNormalize_UnterminatedConflictErrors(t *testing.T) {
	body := []byte("<<<<<<<\nours\n=======\ntheirs\n")
	if _, _, err := Normalize(body); err == nil {
		t.Fatal("expected error for missing >>>>>>> marker")
	}
}

func TestStore_RecordAndReplayRoundTrip(t *testing.T) {
	s := New(t.TempDir())

	pre := []byte("<<<<<<<\nours\n=======\ntheirs\n>>>>>>>\n")
	post := []byte("resolved\n")
	normalized, fp, err := Normalize(pre)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if err := s.Record(fp, normalized, post); err != nil {
		t.Fatalf("Record: %v", err)
	}

	gotPre, gotPost, ok, err := s.Replay(fp)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !ok {
		t.Fatal("expected a recorded resolution")
	}
	if string(gotPre) != string(normalized) {
		t.Fatalf("replayed preimage = %q, want %q", gotPre, normalized)
	}
	if string(gotPost) != string(post) {
		t.Fatalf("replayed postimage = %q, want %q", gotPost, post)
	}
}

func TestStore_ReplayMissingFingerprintReturnsFalse(t *testing.T) {
	s := New(t.TempDir())
	_, _, ok, err := s.Replay("deadbeef")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if ok {
		t.Fatal("expected no recorded resolution")
	}
}

func TestStore_RecordCreatesCacheDirLazily(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "rr-cache")
	s := New(cache)

	if err := s.Record("abc123", []byte("pre"), []byte("post")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, _, ok, err := s.Replay("abc123"); err != nil || !ok {
		t.Fatalf("Replay after Record: ok=%v err=%v", ok, err)
	}
}
