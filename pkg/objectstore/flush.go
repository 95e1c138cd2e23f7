package objectstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/revise/pkg/object"
)

// Flush performs a post-order traversal from root, persisting every
// unpersisted object reachable from it as a loose file before its parent
// is written (§4.3: "flush(reachable_from: OID)"). Objects the traversal
// reaches that are not in the unpersisted buffer are assumed already
// durable (loose or packed) and are skipped — re-running Flush over an
// overlapping range is therefore a no-op for anything already written.
func (s *Store) Flush(root object.Hash) error {
	visited := make(map[object.Hash]bool)
	return s.flushVisit(root, visited)
}

func (s *Store) flushVisit(oid object.Hash, visited map[object.Hash]bool) error {
	if oid.IsZero() || visited[oid] {
		return nil
	}
	visited[oid] = true
	if s.persisted[oid] {
		return nil
	}
	obj, buffered := s.unpersisted[oid]
	if !buffered {
		return nil
	}

	switch obj.Kind {
	case object.KindCommit:
		for _, p := range obj.Commit.Parents {
			if err := s.flushVisit(p, visited); err != nil {
				return err
			}
		}
		if err := s.flushVisit(obj.Commit.Tree, visited); err != nil {
			return err
		}
	case object.KindTree:
		for _, e := range obj.Tree.Entries {
			if err := s.flushVisit(e.OID, visited); err != nil {
				return err
			}
		}
	case object.KindTag:
		if err := s.flushVisit(obj.Tag.Object, visited); err != nil {
			return err
		}
	case object.KindBlob:
		// no further references
	}

	if err := s.persistLoose(oid, obj); err != nil {
		return err
	}
	s.persisted[oid] = true
	delete(s.unpersisted, oid)
	s.hydrated.Add(oid, obj)
	return nil
}

// persistLoose writes obj's compressed loose form to disk via temp-file
// plus rename so the write is atomic (§4.3 invariant: "persistence is
// strictly atomic per object"). Idempotent: an object already on disk at
// its content-addressed path is left untouched.
func (s *Store) persistLoose(oid object.Hash, obj *object.Object) error {
	dest := s.loosePath(oid)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}

	body, err := object.Serialize(obj, s.algo)
	if err != nil {
		return err
	}
	raw, err := object.CompressLoose(obj.Kind, body)
	if err != nil {
		return fmt.Errorf("objectstore: compress %s: %w", oid, err)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("objectstore: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("objectstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: write %s: %w", oid, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: close temp file for %s: %w", oid, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: rename into place for %s: %w", oid, err)
	}
	return nil
}
