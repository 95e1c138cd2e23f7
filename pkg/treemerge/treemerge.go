// Package treemerge implements the in-memory three-way tree merge (§4.5)
// that the rewrite engine uses to rebuild a commit's tree onto a new
// parent without touching a working tree or index.
package treemerge

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/odvcencio/revise/pkg/diff3"
	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// Store is the subset of the object cache MergeTrees needs: reading
// existing trees and blobs, and buffering the newly built ones.
type Store interface {
	GetTree(oid object.Hash) (*object.Tree, error)
	GetBlob(oid object.Hash) (*object.Blob, error)
	NewBlob(data []byte) (object.Hash, error)
	NewTree(entries []object.TreeEntry) (object.Hash, error)
}

// BlobMerger performs the three-way content merge for a single file,
// normally by shelling out to the VCS's own merge-file driver so its
// diff3-style conflict style matches what the user already knows.
type BlobMerger interface {
	MergeFile(ctx context.Context, labels [3]string, current, base, other []byte, scratchDir string) (clean bool, merged []byte, err error)
}

// ConflictEditor hands unresolved conflict markers to the user and
// returns their edited resolution.
type ConflictEditor interface {
	EditConflict(path string, conflicted []byte) ([]byte, error)
}

// RerereStore memoizes conflict resolutions across merges (§4.8). A nil
// RerereStore disables the optimization: every conflict falls through to
// the editor.
type RerereStore interface {
	Normalize(body []byte) (normalized []byte, fingerprint string, err error)
	Replay(fingerprint string) (preimage, postimage []byte, ok bool, err error)
	Record(fingerprint string, preimage, postimage []byte) error
}

// ScratchDir hands out filesystem paths for blob-merge staging files.
type ScratchDir interface {
	Path(name string) string
}

// sideOurs and sideTheirs name the two non-base inputs when a path
// conflict forces the entry to be split in two (§4.5: "synthesize a
// conflicted blob named <name>~<side> on each side").
const (
	sideOurs   = "ours"
	sideTheirs = "theirs"
)

// Merger holds the collaborators MergeTrees needs beyond the trees
// themselves. Blobs, Editor, Rerere, and Scratch may be nil, in which
// case the corresponding fallback (diff3, no editor, no memoization) is
// used; with a nil Editor, any content conflict that rerere cannot replay
// fails outright.
type Merger struct {
	Store   Store
	Blobs   BlobMerger
	Editor  ConflictEditor
	Rerere  RerereStore
	Scratch ScratchDir

	// Labels names (ours, base, theirs) for blob-merge conflict markers,
	// typically the rewrite engine's target/original-parent/source-commit
	// summaries (§4.5).
	Labels [3]string
}

// MergeTrees merges base, ours, and theirs by tree object hash, treating
// a zero Hash as an empty tree (the root of a parentless commit).
func (m *Merger) MergeTrees(ctx context.Context, base, ours, theirs object.Hash) (object.Hash, error) {
	baseTree, err := m.treeOrEmpty(base)
	if err != nil {
		return "", err
	}
	oursTree, err := m.treeOrEmpty(ours)
	if err != nil {
		return "", err
	}
	theirsTree, err := m.treeOrEmpty(theirs)
	if err != nil {
		return "", err
	}
	return m.mergeTrees(ctx, "", baseTree, oursTree, theirsTree)
}

func (m *Merger) treeOrEmpty(oid object.Hash) (*object.Tree, error) {
	if oid.IsZero() {
		return &object.Tree{}, nil
	}
	return m.Store.GetTree(oid)
}

func (m *Merger) mergeTrees(ctx context.Context, dirPath string, base, ours, theirs *object.Tree) (object.Hash, error) {
	baseByName := indexEntries(base)
	oursByName := indexEntries(ours)
	theirsByName := indexEntries(theirs)

	names := make(map[string]struct{}, len(baseByName)+len(oursByName)+len(theirsByName))
	for n := range baseByName {
		names[n] = struct{}{}
	}
	for n := range oursByName {
		names[n] = struct{}{}
	}
	for n := range theirsByName {
		names[n] = struct{}{}
	}

	var entries []object.TreeEntry
	for n := range names {
		merged, err := m.mergeEntry(ctx, path.Join(dirPath, n), n, baseByName[n], oursByName[n], theirsByName[n])
		if err != nil {
			return "", err
		}
		entries = append(entries, merged...)
	}
	sort.Slice(entries, func(i, j int) bool { return treeEntryLess(entries[i], entries[j]) })
	return m.Store.NewTree(entries)
}

func indexEntries(t *object.Tree) map[string]*object.TreeEntry {
	if t == nil {
		return nil
	}
	m := make(map[string]*object.TreeEntry, len(t.Entries))
	for i := range t.Entries {
		e := t.Entries[i]
		m[e.Name] = &e
	}
	return m
}

func treeEntryLess(a, b object.TreeEntry) bool {
	return treeSortKey(a) < treeSortKey(b)
}

func treeSortKey(e object.TreeEntry) string {
	if e.IsTree() {
		return e.Name + "/"
	}
	return e.Name
}

func entryEqual(a, b *object.TreeEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Mode == b.Mode && a.OID == b.OID
}

// mergeEntry merges the (up to three) versions of a single named path,
// following the priority rules of §4.5: unmodified sides yield to the
// modified one, and a genuine three-way divergence recurses into
// subtrees, merges blob content, or synthesizes a path conflict.
func (m *Merger) mergeEntry(ctx context.Context, p, name string, base, ours, theirs *object.TreeEntry) ([]object.TreeEntry, error) {
	if entryEqual(base, ours) {
		return renamedOrNil(theirs, name), nil
	}
	if entryEqual(base, theirs) {
		return renamedOrNil(ours, name), nil
	}
	if entryEqual(ours, theirs) {
		return renamedOrNil(ours, name), nil
	}

	if ours == nil || theirs == nil {
		return m.pathConflict(name, ours, theirs), nil
	}

	switch {
	case ours.IsTree() && theirs.IsTree():
		var baseSub object.Hash
		if base != nil && base.IsTree() {
			baseSub = base.OID
		}
		baseTree, err := m.treeOrEmpty(baseSub)
		if err != nil {
			return nil, err
		}
		oursTree, err := m.Store.GetTree(ours.OID)
		if err != nil {
			return nil, err
		}
		theirsTree, err := m.Store.GetTree(theirs.OID)
		if err != nil {
			return nil, err
		}
		mergedOID, err := m.mergeTrees(ctx, p, baseTree, oursTree, theirsTree)
		if err != nil {
			return nil, err
		}
		return []object.TreeEntry{{Name: name, Mode: object.ModeTree, OID: mergedOID}}, nil

	case isFileMode(ours.Mode) && isFileMode(theirs.Mode):
		mode, resolved := resolveFileMode(base, ours, theirs)
		if !resolved {
			return m.pathConflict(name, ours, theirs), nil
		}
		blobOID, err := m.mergeBlobEntry(ctx, p, base, ours, theirs)
		if err != nil {
			return nil, err
		}
		return []object.TreeEntry{{Name: name, Mode: mode, OID: blobOID}}, nil

	default:
		// Mixed kinds (blob vs tree, symlink vs anything, gitlink vs
		// anything) all constitute a path conflict, as does an unresolved
		// file-mode conflict in the case above.
		return m.pathConflict(name, ours, theirs), nil
	}
}

func renamedOrNil(e *object.TreeEntry, name string) []object.TreeEntry {
	if e == nil {
		return nil
	}
	out := *e
	out.Name = name
	return []object.TreeEntry{out}
}

func isFileMode(mode string) bool {
	return mode == object.ModeFile || mode == object.ModeExecutable
}

// resolveFileMode decides the merged mode for two file-kind entries that
// disagree, taking the side that actually changed it relative to base
// when only one side did; an unresolved disagreement (both changed it,
// differently, or there is no base) is reported as unresolved so the
// caller can fall back to a path conflict.
func resolveFileMode(base, ours, theirs *object.TreeEntry) (string, bool) {
	if ours.Mode == theirs.Mode {
		return ours.Mode, true
	}
	if base != nil && isFileMode(base.Mode) {
		switch base.Mode {
		case ours.Mode:
			return theirs.Mode, true
		case theirs.Mode:
			return ours.Mode, true
		}
	}
	return "", false
}

func (m *Merger) pathConflict(name string, ours, theirs *object.TreeEntry) []object.TreeEntry {
	var out []object.TreeEntry
	if ours != nil {
		out = append(out, object.TreeEntry{Name: fmt.Sprintf("%s~%s", name, sideOurs), Mode: ours.Mode, OID: ours.OID})
	}
	if theirs != nil {
		out = append(out, object.TreeEntry{Name: fmt.Sprintf("%s~%s", name, sideTheirs), Mode: theirs.Mode, OID: theirs.OID})
	}
	return out
}

func (m *Merger) mergeBlobEntry(ctx context.Context, p string, base, ours, theirs *object.TreeEntry) (object.Hash, error) {
	oursBlob, err := m.Store.GetBlob(ours.OID)
	if err != nil {
		return "", err
	}
	theirsBlob, err := m.Store.GetBlob(theirs.OID)
	if err != nil {
		return "", err
	}
	var baseBody []byte
	if base != nil && isFileMode(base.Mode) {
		baseBlob, err := m.Store.GetBlob(base.OID)
		if err != nil {
			return "", err
		}
		baseBody = baseBlob.Data
	}

	clean, merged, err := m.mergeBytes(ctx, p, baseBody, oursBlob.Data, theirsBlob.Data)
	if err != nil {
		return "", err
	}
	if clean {
		return m.Store.NewBlob(merged)
	}

	resolved, err := m.resolveConflict(ctx, p, merged)
	if err != nil {
		return "", err
	}
	return m.Store.NewBlob(resolved)
}

// mergeBytes runs the labeled three-way content merge, preferring the
// VCS's own merge-file driver and falling back to the in-process diff3
// implementation when no bridge is configured or it fails to run at all
// (e.g. the VCS binary isn't on PATH). The fallback's conflict markers
// use generic "ours"/"theirs" labels rather than the commit summaries in
// m.Labels, since diff3.Merge doesn't support custom labels.
func (m *Merger) mergeBytes(ctx context.Context, p string, base, ours, theirs []byte) (bool, []byte, error) {
	if m.Blobs != nil && m.Scratch != nil {
		labels := [3]string{
			fmt.Sprintf("%s: %s", p, m.Labels[0]),
			fmt.Sprintf("%s: %s", p, m.Labels[1]),
			fmt.Sprintf("%s: %s", p, m.Labels[2]),
		}
		clean, merged, err := m.Blobs.MergeFile(ctx, labels, ours, base, theirs, m.Scratch.Path("blobmerge"))
		if err == nil {
			return clean, merged, nil
		}
	}

	result := diff3.Merge(base, ours, theirs)
	return !result.HasConflicts, result.Merged, nil
}

// resolveConflict attempts a rerere replay of the conflict at p before
// falling back to the configured editor, and records the editor's
// resolution for next time (§4.8).
func (m *Merger) resolveConflict(ctx context.Context, p string, conflicted []byte) ([]byte, error) {
	var normalized []byte
	var fingerprint string
	if m.Rerere != nil {
		n, fp, err := m.Rerere.Normalize(conflicted)
		if err == nil {
			normalized, fingerprint = n, fp
			if preimage, postimage, ok, rerr := m.Rerere.Replay(fingerprint); rerr == nil && ok {
				clean, merged, merr := m.mergeBytes(ctx, p, preimage, postimage, normalized)
				if merr == nil && clean {
					return merged, nil
				}
			}
		}
	}

	if m.Editor == nil {
		return nil, reviseerr.New(reviseerr.UnresolvedConflict, fmt.Sprintf("conflict in %q with no editor configured", p))
	}
	resolved, err := m.Editor.EditConflict(p, conflicted)
	if err != nil {
		return nil, err
	}
	if hasConflictMarkers(resolved) {
		return nil, reviseerr.New(reviseerr.UnresolvedConflict, fmt.Sprintf("conflict markers remain in %q", p))
	}

	if m.Rerere != nil && fingerprint != "" {
		_ = m.Rerere.Record(fingerprint, normalized, resolved)
	}
	return resolved, nil
}

func hasConflictMarkers(data []byte) bool {
	return bytes.Contains(data, []byte("<<<<<<<")) ||
		bytes.Contains(data, []byte("=======")) ||
		bytes.Contains(data, []byte(">>>>>>>"))
}
