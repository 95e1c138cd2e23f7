package treemerge

import (
	"context"
	"fmt"
	"testing"

	"github.com/odvcencio/revise/pkg/object"
)

type memStore struct {
	objects map[object.Hash]any // *object.Tree or *object.Blob
	seq     int
}

func newMemStore() *memStore {
	return &memStore{objects: map[object.Hash]any{}}
}

func (s *memStore) nextHash(prefix string) object.Hash {
	s.seq++
	return object.Hash(fmt.Sprintf("%s%063d", prefix, s.seq))
}

func (s *memStore) GetTree(oid object.Hash) (*object.Tree, error) {
	t, ok := s.objects[oid].(*object.Tree)
	if !ok {
		return nil, fmt.Errorf("not a tree: %s", oid)
	}
	return t, nil
}

func (s *memStore) GetBlob(oid object.Hash) (*object.Blob, error) {
	b, ok := s.objects[oid].(*object.Blob)
	if !ok {
		return nil, fmt.Errorf("not a blob: %s", oid)
	}
	return b, nil
}

func (s *memStore) NewBlob(data []byte) (object.Hash, error) {
	h := s.nextHash("b")
	s.objects[h] = &object.Blob{Data: data}
	return h, nil
}

func (s *memStore) NewTree(entries []object.TreeEntry) (object.Hash, error) {
	h := s.nextHash("t")
	s.objects[h] = &object.Tree{Entries: entries}
	return h, nil
}

func (s *memStore) putBlob(data []byte) object.Hash {
	h, _ := s.NewBlob(data)
	return h
}

func (s *memStore) putTree(entries []object.TreeEntry) object.Hash {
	h, _ := s.NewTree(entries)
	return h
}

func TestMergeTrees_UnchangedSideYieldsToModified(t *testing.T) {
	store := newMemStore()
	baseBlob := store.putBlob([]byte("base\n"))
	oursBlob := store.putBlob([]byte("ours changed\n"))

	base := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: baseBlob}})
	ours := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: oursBlob}})
	theirs := base // theirs unchanged from base

	m := &Merger{Store: store}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}

	tree, err := store.GetTree(merged)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].OID != oursBlob {
		t.Fatalf("expected merged tree to keep ours' change, got %+v", tree.Entries)
	}
}

func TestMergeTrees_BothSidesAgreeIsClean(t *testing.T) {
	store := newMemStore()
	blob := store.putBlob([]byte("same\n"))
	base := store.putTree(nil)
	ours := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: blob}})
	theirs := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: blob}})

	m := &Merger{Store: store}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	tree, _ := store.GetTree(merged)
	if len(tree.Entries) != 1 || tree.Entries[0].OID != blob {
		t.Fatalf("unexpected merge result: %+v", tree.Entries)
	}
}

func TestMergeTrees_TrueConflictFallsBackToDiff3AndFailsWithoutEditor(t *testing.T) {
	store := newMemStore()
	baseBlob := store.putBlob([]byte("line\n"))
	oursBlob := store.putBlob([]byte("ours line\n"))
	theirsBlob := store.putBlob([]byte("theirs line\n"))

	base := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: baseBlob}})
	ours := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: oursBlob}})
	theirs := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: theirsBlob}})

	m := &Merger{Store: store, Labels: [3]string{"ours", "base", "theirs"}}
	_, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err == nil {
		t.Fatal("expected an unresolved-conflict error with no editor configured")
	}
}

type stubEditor struct {
	resolved []byte
}

func (e *stubEditor) EditConflict(path string, conflicted []byte) ([]byte, error) {
	return e.resolved, nil
}

func TestMergeTrees_TrueConflictResolvedByEditor(t *testing.T) {
	store := newMemStore()
	baseBlob := store.putBlob([]byte("line\n"))
	oursBlob := store.putBlob([]byte("ours line\n"))
	theirsBlob := store.putBlob([]byte("theirs line\n"))

	base := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: baseBlob}})
	ours := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: oursBlob}})
	theirs := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: theirsBlob}})

	m := &Merger{Store: store, Editor: &stubEditor{resolved: []byte("resolved line\n")}}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	tree, _ := store.GetTree(merged)
	blob, _ := store.GetBlob(tree.Entries[0].OID)
	if string(blob.Data) != "resolved line\n" {
		t.Fatalf("merged blob = %q, want editor resolution", blob.Data)
	}
}

func TestMergeTrees_DeletionVersusModificationIsPathConflict(t *testing.T) {
	store := newMemStore()
	baseBlob := store.putBlob([]byte("base\n"))
	theirsBlob := store.putBlob([]byte("theirs changed\n"))

	base := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: baseBlob}})
	ours := store.putTree(nil) // ours deleted a.txt
	theirs := store.putTree([]object.TreeEntry{{Name: "a.txt", Mode: object.ModeFile, OID: theirsBlob}})

	m := &Merger{Store: store}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	tree, _ := store.GetTree(merged)
	if len(tree.Entries) != 1 || tree.Entries[0].Name != "a.txt~theirs" {
		t.Fatalf("expected a single a.txt~theirs entry, got %+v", tree.Entries)
	}
}

func TestMergeTrees_MixedKindIsPathConflictWithBothSides(t *testing.T) {
	store := newMemStore()
	oursBlob := store.putBlob([]byte("i am a file\n"))
	nestedBlob := store.putBlob([]byte("nested\n"))
	theirsSubtree := store.putTree([]object.TreeEntry{{Name: "inner", Mode: object.ModeFile, OID: nestedBlob}})

	base := store.putTree(nil)
	ours := store.putTree([]object.TreeEntry{{Name: "x", Mode: object.ModeFile, OID: oursBlob}})
	theirs := store.putTree([]object.TreeEntry{{Name: "x", Mode: object.ModeTree, OID: theirsSubtree}})

	m := &Merger{Store: store}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	tree, _ := store.GetTree(merged)
	if len(tree.Entries) != 2 {
		t.Fatalf("expected two synthesized conflict entries, got %+v", tree.Entries)
	}
	names := map[string]bool{}
	for _, e := range tree.Entries {
		names[e.Name] = true
	}
	if !names["x~ours"] || !names["x~theirs"] {
		t.Fatalf("expected x~ours and x~theirs, got %+v", tree.Entries)
	}
}

func TestMergeTrees_RecursesIntoSubtrees(t *testing.T) {
	store := newMemStore()
	v1 := store.putBlob([]byte("v1\n"))
	v2 := store.putBlob([]byte("v2\n"))
	v3 := store.putBlob([]byte("v3\n"))

	baseSub := store.putTree([]object.TreeEntry{{Name: "f.txt", Mode: object.ModeFile, OID: v1}})
	oursSub := store.putTree([]object.TreeEntry{{Name: "f.txt", Mode: object.ModeFile, OID: v2}})
	theirsSub := store.putTree([]object.TreeEntry{
		{Name: "f.txt", Mode: object.ModeFile, OID: v1},
		{Name: "g.txt", Mode: object.ModeFile, OID: v3},
	})

	base := store.putTree([]object.TreeEntry{{Name: "dir", Mode: object.ModeTree, OID: baseSub}})
	ours := store.putTree([]object.TreeEntry{{Name: "dir", Mode: object.ModeTree, OID: oursSub}})
	theirs := store.putTree([]object.TreeEntry{{Name: "dir", Mode: object.ModeTree, OID: theirsSub}})

	m := &Merger{Store: store}
	merged, err := m.MergeTrees(context.Background(), base, ours, theirs)
	if err != nil {
		t.Fatalf("MergeTrees: %v", err)
	}
	tree, _ := store.GetTree(merged)
	subTree, err := store.GetTree(tree.Entries[0].OID)
	if err != nil {
		t.Fatalf("GetTree(subtree): %v", err)
	}
	if len(subTree.Entries) != 2 {
		t.Fatalf("expected merged subtree to contain both f.txt and g.txt, got %+v", subTree.Entries)
	}
	byName := map[string]object.Hash{}
	for _, e := range subTree.Entries {
		byName[e.Name] = e.OID
	}
	if byName["f.txt"] != v2 {
		t.Fatalf("f.txt should keep ours' change, got %s", byName["f.txt"])
	}
	if byName["g.txt"] != v3 {
		t.Fatalf("g.txt should keep theirs' addition, got %s", byName["g.txt"])
	}
}

func TestResolveFileMode_OneSideChangedWins(t *testing.T) {
	base := &object.TreeEntry{Mode: object.ModeFile}
	ours := &object.TreeEntry{Mode: object.ModeExecutable}
	theirs := &object.TreeEntry{Mode: object.ModeFile}

	mode, ok := resolveFileMode(base, ours, theirs)
	if !ok || mode != object.ModeExecutable {
		t.Fatalf("resolveFileMode = (%q, %v), want (%q, true)", mode, ok, object.ModeExecutable)
	}
}

func TestResolveFileMode_NoBaseIsUnresolved(t *testing.T) {
	ours := &object.TreeEntry{Mode: object.ModeExecutable}
	theirs := &object.TreeEntry{Mode: object.ModeFile}

	_, ok := resolveFileMode(nil, ours, theirs)
	if ok {
		t.Fatal("expected unresolved mode conflict with no base to break the tie")
	}
}
