package rewrite

import (
	"context"
	"testing"

	"github.com/odvcencio/revise/pkg/object"
)

type fakeTreeBridge struct {
	seeded  object.Hash
	patched object.Hash
	result  object.Hash
}

func (b *fakeTreeBridge) ReadTree(ctx context.Context, indexFile string, tree object.Hash) error {
	b.seeded = tree
	return nil
}

func (b *fakeTreeBridge) AddPatch(ctx context.Context, indexFile string, target object.Hash, pathspec ...string) error {
	b.patched = target
	return nil
}

func (b *fakeTreeBridge) WriteTree(ctx context.Context, indexFile string) (object.Hash, error) {
	return b.result, nil
}

type fakeScratch struct{ dir string }

func (s *fakeScratch) Path(name string) string { return s.dir + "/" + name }

func TestCut_SplitsIntoTwoCommitsChained(t *testing.T) {
	store := newCommitStore()
	bridge := &fakeTreeBridge{result: tree(5)}
	scratch := &fakeScratch{dir: "/tmp/scratch"}
	commit := object.Commit{Tree: tree(2), Parents: []object.Hash{h(1)}, Message: []byte("split me\n")}

	part1, part2, err := Cut(context.Background(), bridge, scratch, nil, store, commit, tree(1))
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	p1, _ := store.GetCommit(part1)
	p2, _ := store.GetCommit(part2)

	if p1.Tree != tree(5) {
		t.Fatalf("part1 tree = %v, want %v", p1.Tree, tree(5))
	}
	if string(p1.Message) != "[1] split me\n" {
		t.Fatalf("part1 message = %q", p1.Message)
	}
	if len(p2.Parents) != 1 || p2.Parents[0] != part1 {
		t.Fatalf("part2 must be parented on part1, got %v", p2.Parents)
	}
	if p2.Tree != tree(2) {
		t.Fatalf("part2 tree = %v, want the original commit's tree %v", p2.Tree, tree(2))
	}
	if string(p2.Message) != "[2] split me\n" {
		t.Fatalf("part2 message = %q", p2.Message)
	}
	if bridge.seeded != tree(1) {
		t.Fatalf("expected the temp index seeded from the parent tree, got %v", bridge.seeded)
	}
	if bridge.patched != tree(2) {
		t.Fatalf("expected the interactive reset to target the final tree, got %v", bridge.patched)
	}
}

func TestCut_EmptyFirstPartAborts(t *testing.T) {
	store := newCommitStore()
	bridge := &fakeTreeBridge{result: tree(1)} // nothing selected: write-tree reproduces the parent
	scratch := &fakeScratch{dir: "/tmp/scratch"}
	commit := object.Commit{Tree: tree(2), Parents: []object.Hash{h(1)}, Message: []byte("m\n")}

	if _, _, err := Cut(context.Background(), bridge, scratch, nil, store, commit, tree(1)); err == nil {
		t.Fatal("expected an error when part [1] would be empty")
	}
}

func TestCut_EmptySecondPartAborts(t *testing.T) {
	store := newCommitStore()
	bridge := &fakeTreeBridge{result: tree(2)} // everything selected: write-tree reproduces the final tree
	scratch := &fakeScratch{dir: "/tmp/scratch"}
	commit := object.Commit{Tree: tree(2), Parents: []object.Hash{h(1)}, Message: []byte("m\n")}

	if _, _, err := Cut(context.Background(), bridge, scratch, nil, store, commit, tree(1)); err == nil {
		t.Fatal("expected an error when part [2] would be empty")
	}
}

func TestCut_NilEditorKeepsGeneratedMessages(t *testing.T) {
	store := newCommitStore()
	bridge := &fakeTreeBridge{result: tree(5)}
	scratch := &fakeScratch{dir: "/tmp/scratch"}
	commit := object.Commit{Tree: tree(2), Parents: []object.Hash{h(1)}, Message: []byte("m\n")}

	part1, part2, err := Cut(context.Background(), bridge, scratch, nil, store, commit, tree(1))
	if err != nil {
		t.Fatalf("Cut: %v", err)
	}
	p1, _ := store.GetCommit(part1)
	p2, _ := store.GetCommit(part2)
	if string(p1.Message) != "[1] m\n" || string(p2.Message) != "[2] m\n" {
		t.Fatalf("unexpected messages: %q / %q", p1.Message, p2.Message)
	}
}
