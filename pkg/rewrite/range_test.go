package rewrite

import (
	"testing"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

type fakeCommitStore map[object.Hash]*object.Commit

func (s fakeCommitStore) GetCommit(oid object.Hash) (*object.Commit, error) {
	c, ok := s[oid]
	if !ok {
		return nil, reviseerr.New(reviseerr.MissingObject, string(oid))
	}
	return c, nil
}

func h(n int) object.Hash {
	return object.Hash([]byte{byte('a' + n)})
}

func TestCommitRange_LinearChainOldestFirst(t *testing.T) {
	commits := fakeCommitStore{
		h(1): {Parents: nil},
		h(2): {Parents: []object.Hash{h(1)}},
		h(3): {Parents: []object.Hash{h(2)}},
	}
	got, err := CommitRange(commits, h(3), h(1))
	if err != nil {
		t.Fatalf("CommitRange: %v", err)
	}
	if len(got) != 2 || got[0] != h(2) || got[1] != h(3) {
		t.Fatalf("got %v, want [%v %v]", got, h(2), h(3))
	}
}

func TestCommitRange_ZeroTargetWalksToRoot(t *testing.T) {
	commits := fakeCommitStore{
		h(1): {Parents: nil},
		h(2): {Parents: []object.Hash{h(1)}},
	}
	got, err := CommitRange(commits, h(2), "")
	if err != nil {
		t.Fatalf("CommitRange: %v", err)
	}
	if len(got) != 2 || got[0] != h(1) || got[1] != h(2) {
		t.Fatalf("got %v", got)
	}
}

func TestCommitRange_MergeCommitInRangeErrors(t *testing.T) {
	commits := fakeCommitStore{
		h(1): {Parents: nil},
		h(2): {Parents: []object.Hash{h(1)}},
		h(3): {Parents: []object.Hash{h(2), h(1)}},
	}
	_, err := CommitRange(commits, h(3), h(1))
	if !reviseerr.Is(err, reviseerr.MergeInRange) {
		t.Fatalf("expected MergeInRange, got %v", err)
	}
}

func TestCommitRange_TargetNotAncestorErrors(t *testing.T) {
	commits := fakeCommitStore{
		h(1): {Parents: nil},
		h(2): {Parents: nil},
	}
	_, err := CommitRange(commits, h(1), h(2))
	if !reviseerr.Is(err, reviseerr.BadRevision) {
		t.Fatalf("expected BadRevision, got %v", err)
	}
}
