// Package objectstore implements the typed, deduplicating object cache
// (§4.3): it backs every read the rest of the tool performs and buffers
// newly constructed objects in memory until an explicit flush persists
// them as loose files under the repository's object directory.
package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// cacheSize bounds the hydrated-object LRU so long rewrite ranges over
// large repositories don't grow memory unbounded; unpersisted objects are
// never evicted regardless of this bound (flush must see all of them).
const cacheSize = 4096

// Store is the object cache described by §4.3. It reads loose objects and
// pack files rooted at gitDir, and holds newly built objects in memory
// until Flush persists them.
type Store struct {
	gitDir string
	algo   object.Algo

	hydrated *lru.Cache[object.Hash, *object.Object]

	unpersisted map[object.Hash]*object.Object
	persisted   map[object.Hash]bool

	packs []*packHandle
}

// New opens a Store rooted at gitDir (the VCS's own object directory, e.g.
// ".git"), using algo to interpret and produce object identifiers.
func New(gitDir string, algo object.Algo) (*Store, error) {
	c, err := lru.New[object.Hash, *object.Object](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("objectstore: new cache: %w", err)
	}
	s := &Store{
		gitDir:      gitDir,
		algo:        algo,
		hydrated:    c,
		unpersisted: make(map[object.Hash]*object.Object),
		persisted:   make(map[object.Hash]bool),
	}
	if err := s.loadPacks(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loosePath(h object.Hash) string {
	return filepath.Join(s.gitDir, "objects", string(h[:2]), string(h[2:]))
}

// Get returns the hydrated object for oid, reading through loose storage
// then pack indices on a cache miss (§4.3: "get(oid) -> Object").
func (s *Store) Get(oid object.Hash) (*object.Object, error) {
	if o, ok := s.unpersisted[oid]; ok {
		return o, nil
	}
	if o, ok := s.hydrated.Get(oid); ok {
		return o, nil
	}

	kind, body, err := s.readLoose(oid)
	if err == nil {
		o, err := object.Parse(kind, body, s.algo)
		if err != nil {
			return nil, err
		}
		s.hydrated.Add(oid, o)
		return o, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kind, body, err = s.readFromPacks(oid)
	if err != nil {
		return nil, err
	}
	o, err := object.Parse(kind, body, s.algo)
	if err != nil {
		return nil, err
	}
	s.hydrated.Add(oid, o)
	return o, nil
}

func (s *Store) readLoose(oid object.Hash) (object.Kind, []byte, error) {
	raw, err := os.ReadFile(s.loosePath(oid))
	if err != nil {
		return "", nil, err
	}
	return object.DecompressLoose(raw, s.algo)
}

func (s *Store) readFromPacks(oid object.Hash) (object.Kind, []byte, error) {
	for _, p := range s.packs {
		entry, ok := p.index.Find(oid)
		if !ok {
			continue
		}
		pf, err := p.packFile()
		if err != nil {
			return "", nil, err
		}
		idx, ok := pf.offsetIndex[int(entry.Offset)]
		if !ok {
			return "", nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("pack %s: index points at offset with no entry", p.path))
		}
		data, packType, err := object.ResolveEntry(pf.file, idx, s.algo)
		if err != nil {
			return "", nil, reviseerr.Wrap(reviseerr.CorruptObject, fmt.Sprintf("pack %s: resolve entry", p.path), err)
		}
		kind, err := packKindToObjectKind(packType)
		if err != nil {
			return "", nil, err
		}
		return kind, data, nil
	}
	return "", nil, reviseerr.New(reviseerr.MissingObject, fmt.Sprintf("object %s not found", oid))
}

func packKindToObjectKind(t object.PackObjectType) (object.Kind, error) {
	switch t {
	case object.PackCommit:
		return object.KindCommit, nil
	case object.PackTree:
		return object.KindTree, nil
	case object.PackBlob:
		return object.KindBlob, nil
	case object.PackTag:
		return object.KindTag, nil
	default:
		return "", reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("pack entry resolved to non-object type %d", t))
	}
}

// GetAbbrev resolves a hex prefix against loose and pack storage, requiring
// a unique match (§4.3: "get_abbrev(prefix) -> Object").
func (s *Store) GetAbbrev(prefix string) (object.Hash, *object.Object, error) {
	prefix = strings.ToLower(prefix)
	if len(prefix) == s.algo.Width()*2 {
		oid := object.Hash(prefix)
		o, err := s.Get(oid)
		if err != nil {
			return "", nil, err
		}
		return oid, o, nil
	}
	if len(prefix) < 2 {
		return "", nil, reviseerr.New(reviseerr.AmbiguousOID, fmt.Sprintf("abbreviation %q too short", prefix))
	}

	matches := make(map[object.Hash]struct{})
	for oid := range s.unpersisted {
		if strings.HasPrefix(string(oid), prefix) {
			matches[oid] = struct{}{}
		}
	}

	bucketDir := filepath.Join(s.gitDir, "objects", prefix[:2])
	if entries, err := os.ReadDir(bucketDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
				continue
			}
			oid := object.Hash(prefix[:2] + e.Name())
			if strings.HasPrefix(string(oid), prefix) {
				matches[oid] = struct{}{}
			}
		}
	}

	for _, p := range s.packs {
		for _, entry := range p.index.Entries() {
			if strings.HasPrefix(string(entry.OID), prefix) {
				matches[entry.OID] = struct{}{}
			}
		}
	}

	switch len(matches) {
	case 0:
		return "", nil, reviseerr.New(reviseerr.MissingObject, fmt.Sprintf("no object matches abbreviation %q", prefix))
	case 1:
		for oid := range matches {
			o, err := s.Get(oid)
			if err != nil {
				return "", nil, err
			}
			return oid, o, nil
		}
	}

	oids := make([]string, 0, len(matches))
	for oid := range matches {
		oids = append(oids, string(oid))
	}
	sort.Strings(oids)
	return "", nil, reviseerr.New(reviseerr.AmbiguousOID, fmt.Sprintf("abbreviation %q matches %d objects: %s", prefix, len(oids), strings.Join(oids, ", ")))
}

// NewObject hashes body under kind and buffers it as unpersisted, returning
// its OID. An OID already known (persisted, cached, or already buffered)
// is deduplicated rather than re-inserted (§4.3: "new_object ... If OID
// already present, deduplicates").
func (s *Store) NewObject(o *object.Object) (object.Hash, error) {
	oid, err := object.OID(o, s.algo)
	if err != nil {
		return "", err
	}
	if s.persisted[oid] {
		return oid, nil
	}
	if _, ok := s.unpersisted[oid]; ok {
		return oid, nil
	}
	if _, ok := s.hydrated.Get(oid); ok {
		return oid, nil
	}
	s.unpersisted[oid] = o
	return oid, nil
}

// Algo reports the hash algorithm this store was opened with.
func (s *Store) Algo() object.Algo {
	return s.algo
}
