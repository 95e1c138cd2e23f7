package objectstore

import (
	"fmt"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// GetTree hydrates oid and asserts it is a tree.
func (s *Store) GetTree(oid object.Hash) (*object.Tree, error) {
	o, err := s.Get(oid)
	if err != nil {
		return nil, err
	}
	if o.Kind != object.KindTree {
		return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("%s: expected tree, got %s", oid, o.Kind))
	}
	return o.Tree, nil
}

// GetCommit hydrates oid and asserts it is a commit.
func (s *Store) GetCommit(oid object.Hash) (*object.Commit, error) {
	o, err := s.Get(oid)
	if err != nil {
		return nil, err
	}
	if o.Kind != object.KindCommit {
		return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("%s: expected commit, got %s", oid, o.Kind))
	}
	return o.Commit, nil
}

// GetBlob hydrates oid and asserts it is a blob.
func (s *Store) GetBlob(oid object.Hash) (*object.Blob, error) {
	o, err := s.Get(oid)
	if err != nil {
		return nil, err
	}
	if o.Kind != object.KindBlob {
		return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("%s: expected blob, got %s", oid, o.Kind))
	}
	return o.Blob, nil
}

// NewBlob buffers a blob object and returns its OID.
func (s *Store) NewBlob(data []byte) (object.Hash, error) {
	return s.NewObject(&object.Object{Kind: object.KindBlob, Blob: &object.Blob{Data: data}})
}

// NewTree buffers a tree object (re-sorted canonically by the codec) and
// returns its OID.
func (s *Store) NewTree(entries []object.TreeEntry) (object.Hash, error) {
	return s.NewObject(&object.Object{Kind: object.KindTree, Tree: &object.Tree{Entries: entries}})
}

// NewCommit buffers a commit object and returns its OID.
func (s *Store) NewCommit(c *object.Commit) (object.Hash, error) {
	return s.NewObject(&object.Object{Kind: object.KindCommit, Commit: c})
}
