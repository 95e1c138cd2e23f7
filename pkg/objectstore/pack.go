package objectstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/revise/pkg/object"
)

// packHandle lazily loads a single pack's index, and its full pack stream
// only once an entry inside it is actually needed.
type packHandle struct {
	path      string // .pack path
	idxPath   string
	index     *object.PackIndex
	algo      object.Algo
	loadedPf  *loadedPack
}

type loadedPack struct {
	file        *object.PackFile
	offsetIndex map[int]int
}

func (p *packHandle) packFile() (*loadedPack, error) {
	if p.loadedPf != nil {
		return p.loadedPf, nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read pack %s: %w", p.path, err)
	}
	pf, err := object.ReadPack(data, p.algo)
	if err != nil {
		return nil, fmt.Errorf("objectstore: parse pack %s: %w", p.path, err)
	}
	offsetIndex := make(map[int]int, len(pf.Entries))
	for i, e := range pf.Entries {
		offsetIndex[e.Offset] = i
	}
	p.loadedPf = &loadedPack{file: pf, offsetIndex: offsetIndex}
	return p.loadedPf, nil
}

// loadPacks discovers every <name>.idx / <name>.pack pair under
// gitDir/objects/pack, deferring the (expensive) full pack parse until an
// object inside one is actually requested.
func (s *Store) loadPacks() error {
	dir := filepath.Join(s.gitDir, "objects", "pack")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("objectstore: list pack directory: %w", err)
	}

	var idxNames []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".idx") {
			idxNames = append(idxNames, e.Name())
		}
	}
	sort.Strings(idxNames)

	for _, name := range idxNames {
		idxPath := filepath.Join(dir, name)
		packPath := filepath.Join(dir, strings.TrimSuffix(name, ".idx")+".pack")
		if _, err := os.Stat(packPath); err != nil {
			continue
		}
		data, err := os.ReadFile(idxPath)
		if err != nil {
			return fmt.Errorf("objectstore: read pack index %s: %w", idxPath, err)
		}
		idx, err := object.ReadPackIndex(data, s.algo)
		if err != nil {
			return fmt.Errorf("objectstore: parse pack index %s: %w", idxPath, err)
		}
		s.packs = append(s.packs, &packHandle{
			path:    packPath,
			idxPath: idxPath,
			index:   idx,
			algo:    s.algo,
		})
	}
	return nil
}
