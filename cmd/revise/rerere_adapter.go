package main

import (
	"path/filepath"

	"github.com/odvcencio/revise/pkg/reviserepo"
	"github.com/odvcencio/revise/pkg/rerere"
)

// rerereStoreAdapter adapts pkg/rerere's package-level Normalize function
// and *rerere.Store's methods to pkg/treemerge's RerereStore interface,
// which bundles normalization and storage behind one collaborator.
type rerereStoreAdapter struct {
	store *rerere.Store
}

func newRerereStore(repo *reviserepo.Repo) rerereStoreAdapter {
	return rerereStoreAdapter{store: rerere.New(filepath.Join(repo.CommonDir, "rr-cache"))}
}

func (a rerereStoreAdapter) Normalize(body []byte) ([]byte, string, error) {
	return rerere.Normalize(body)
}

func (a rerereStoreAdapter) Replay(fingerprint string) ([]byte, []byte, bool, error) {
	return a.store.Replay(fingerprint)
}

func (a rerereStoreAdapter) Record(fingerprint string, preimage, postimage []byte) error {
	return a.store.Record(fingerprint, preimage, postimage)
}
