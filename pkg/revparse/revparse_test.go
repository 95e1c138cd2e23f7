package revparse

import (
	"testing"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

type fakeRefs map[string]object.Hash

func (f fakeRefs) ResolveRef(name string) (object.Hash, error) {
	if h, ok := f[name]; ok {
		return h, nil
	}
	return "", reviseerr.New(reviseerr.BadRevision, "unknown ref "+name)
}

type fakeObjects map[object.Hash]*object.Object

func (f fakeObjects) Get(oid object.Hash) (*object.Object, error) {
	if o, ok := f[oid]; ok {
		return o, nil
	}
	return nil, reviseerr.New(reviseerr.MissingObject, "missing "+string(oid))
}

func (f fakeObjects) GetAbbrev(prefix string) (object.Hash, *object.Object, error) {
	var match object.Hash
	count := 0
	for oid := range f {
		if len(oid) >= len(prefix) && string(oid[:len(prefix)]) == prefix {
			match = oid
			count++
		}
	}
	switch count {
	case 0:
		return "", nil, reviseerr.New(reviseerr.MissingObject, "no match for "+prefix)
	case 1:
		return match, f[match], nil
	default:
		return "", nil, reviseerr.New(reviseerr.AmbiguousOID, "ambiguous "+prefix)
	}
}

func commitHash(n int) object.Hash {
	digits := "0123456789abcdef"
	b := make([]byte, 64)
	for i := range b {
		b[i] = digits[(n+i)%16]
	}
	return object.Hash(b)
}

func buildChain(n int) (fakeObjects, []object.Hash) {
	objs := make(fakeObjects)
	var chain []object.Hash
	var parent object.Hash
	for i := 0; i < n; i++ {
		oid := commitHash(i + 1)
		var parents []object.Hash
		if parent != "" {
			parents = []object.Hash{parent}
		}
		objs[oid] = &object.Object{Kind: object.KindCommit, Commit: &object.Commit{
			Tree:    commitHash(100 + i),
			Parents: parents,
			Message: []byte("commit\n"),
		}}
		chain = append(chain, oid)
		parent = oid
	}
	return objs, chain
}

func TestResolveHEAD(t *testing.T) {
	objs, chain := buildChain(3)
	refs := fakeRefs{"HEAD": chain[2]}

	got, err := Resolve("", refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != chain[2] {
		t.Fatalf("got %s, want %s", got, chain[2])
	}
}

func TestResolveAncestorStep(t *testing.T) {
	objs, chain := buildChain(3)
	refs := fakeRefs{"HEAD": chain[2]}

	got, err := Resolve("HEAD~2", refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != chain[0] {
		t.Fatalf("got %s, want %s", got, chain[0])
	}
}

func TestResolveFirstParentStep(t *testing.T) {
	objs, chain := buildChain(3)
	refs := fakeRefs{"HEAD": chain[2]}

	got, err := Resolve("HEAD^", refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != chain[1] {
		t.Fatalf("got %s, want %s", got, chain[1])
	}
}

func TestResolveMissingParentIsBadRevision(t *testing.T) {
	objs, chain := buildChain(1)
	refs := fakeRefs{"HEAD": chain[0]}

	_, err := Resolve("HEAD^", refs, objs)
	if !reviseerr.Is(err, reviseerr.BadRevision) {
		t.Fatalf("err = %v, want BadRevision", err)
	}
}

func TestResolveCommitPeel(t *testing.T) {
	objs, chain := buildChain(1)
	refs := fakeRefs{"main": chain[0]}

	got, err := Resolve("main^{commit}", refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != chain[0] {
		t.Fatalf("got %s, want %s", got, chain[0])
	}
}

func TestResolveTreePeel(t *testing.T) {
	objs, chain := buildChain(1)
	refs := fakeRefs{"main": chain[0]}

	got, err := Resolve("main^{tree}", refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	wantTree := objs[chain[0]].Commit.Tree
	if got != wantTree {
		t.Fatalf("got %s, want %s", got, wantTree)
	}
}

func TestResolveAbbreviatedOID(t *testing.T) {
	objs, chain := buildChain(1)
	refs := fakeRefs{}

	got, err := Resolve(string(chain[0][:8]), refs, objs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != chain[0] {
		t.Fatalf("got %s, want %s", got, chain[0])
	}
}

func TestResolveUnknownRefIsBadRevision(t *testing.T) {
	objs, _ := buildChain(1)
	refs := fakeRefs{}

	_, err := Resolve("nonexistent", refs, objs)
	if !reviseerr.Is(err, reviseerr.BadRevision) {
		t.Fatalf("err = %v, want BadRevision", err)
	}
}
