package object

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// PackEntry represents one object entry in a decoded pack stream. Offset
// is the entry's byte offset within the pack, needed to resolve
// OFS_DELTA base references.
type PackEntry struct {
	Type       PackObjectType
	Size       uint64
	Data       []byte // zlib-inflated; still delta-encoded for delta types
	Offset     int
	BaseOffset int  // for PackOfsDelta: absolute pack offset of the base entry
	BaseRef    Hash // for PackRefDelta: OID of the base object
}

// PackFile is the decoded content of a full pack stream.
type PackFile struct {
	Header   PackHeader
	Entries  []PackEntry
	Checksum Hash
}

// ReadPack parses a full pack file byte slice and verifies its trailer
// checksum using algo. Entries with delta types are left delta-encoded;
// callers resolve delta chains via ResolveEntry.
func ReadPack(data []byte, algo Algo) (*PackFile, error) {
	width := algo.Width()
	if len(data) < packHeaderSize+width {
		return nil, fmt.Errorf("pack too short: %d", len(data))
	}

	payload := data[:len(data)-width]
	trailer := data[len(data)-width:]

	sum := algo.new()
	sum.Write(payload)
	if !bytes.Equal(sum.Sum(nil), trailer) {
		return nil, fmt.Errorf("pack checksum mismatch")
	}

	header, err := UnmarshalPackHeader(payload[:packHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := packHeaderSize
	entries := make([]PackEntry, 0, header.NumObjects)
	for i := uint32(0); i < header.NumObjects; i++ {
		entryStart := offset
		objType, size, n, err := decodePackEntryHeaderStrict(payload[offset:])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		offset += n

		// OFS_DELTA and REF_DELTA entries carry a base reference before
		// the zlib stream.
		var baseOffset int
		var baseRef Hash
		switch objType {
		case PackOfsDelta:
			distance, consumed, err := decodeOfsDeltaDistance(payload[offset:])
			if err != nil {
				return nil, fmt.Errorf("entry %d: ofs-delta base: %w", i, err)
			}
			baseOffset = entryStart - int(distance)
			offset += consumed
		case PackRefDelta:
			if offset+width > len(payload) {
				return nil, fmt.Errorf("entry %d: ref-delta base truncated", i)
			}
			baseRef = bytesToHash(payload[offset : offset+width])
			offset += width
		}

		if offset >= len(payload) {
			return nil, fmt.Errorf("entry %d: missing compressed payload", i)
		}

		sub := bytes.NewReader(payload[offset:])
		zr, err := zlib.NewReader(sub)
		if err != nil {
			return nil, fmt.Errorf("entry %d: zlib reader: %w", i, err)
		}
		raw, err := io.ReadAll(zr)
		if err != nil {
			_ = zr.Close()
			return nil, fmt.Errorf("entry %d: decompress: %w", i, err)
		}
		if err := zr.Close(); err != nil {
			return nil, fmt.Errorf("entry %d: close zlib stream: %w", i, err)
		}
		if uint64(len(raw)) != size {
			return nil, fmt.Errorf("entry %d: size mismatch header=%d decoded=%d", i, size, len(raw))
		}

		consumed := len(payload[offset:]) - sub.Len()
		offset += consumed

		entries = append(entries, PackEntry{
			Type:       objType,
			Size:       size,
			Data:       raw,
			Offset:     entryStart,
			BaseOffset: baseOffset,
			BaseRef:    baseRef,
		})
	}

	if offset != len(payload) {
		return nil, fmt.Errorf("pack has trailing undecoded bytes: %d", len(payload)-offset)
	}

	return &PackFile{
		Header:   *header,
		Entries:  entries,
		Checksum: bytesToHash(trailer),
	}, nil
}

// ReadPackFromReader reads a complete pack stream from r and delegates to
// ReadPack for decode and verification.
func ReadPackFromReader(r io.Reader, algo Algo) (*PackFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pack stream: %w", err)
	}
	return ReadPack(data, algo)
}

func decodePackEntryHeaderStrict(data []byte) (PackObjectType, uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, 0, fmt.Errorf("entry header truncated")
	}

	b := data[0]
	objType := PackObjectType((b >> 4) & 0x7)
	size := uint64(b & 0x0f)
	shift := uint(4)
	consumed := 1

	for b&0x80 != 0 {
		if consumed >= len(data) {
			return 0, 0, 0, fmt.Errorf("entry header truncated")
		}
		b = data[consumed]
		size |= uint64(b&0x7f) << shift
		shift += 7
		consumed++
	}

	return objType, size, consumed, nil
}

func packTypeToKind(t PackObjectType) (Kind, error) {
	switch t {
	case PackCommit:
		return KindCommit, nil
	case PackTree:
		return KindTree, nil
	case PackBlob:
		return KindBlob, nil
	case PackTag:
		return KindTag, nil
	default:
		return "", fmt.Errorf("pack object type %d has no object kind", t)
	}
}

type resolvedEntry struct {
	data []byte
	typ  PackObjectType
}

// ResolveEntry resolves a possibly-delta-encoded entry at index i into its
// final undeltified bytes, walking OFS_DELTA/REF_DELTA chains against
// other entries in the same pack. A REF_DELTA whose base is not present
// in this pack (a genuinely thin pack) is an error — the VCS's own pack
// tooling is expected to have completed such packs on disk already.
func ResolveEntry(pf *PackFile, i int, algo Algo) ([]byte, PackObjectType, error) {
	byOffset := make(map[int]int, len(pf.Entries))
	for idx, e := range pf.Entries {
		byOffset[e.Offset] = idx
	}
	cache := make(map[int]resolvedEntry, len(pf.Entries))

	var resolve func(idx int, depth int) (resolvedEntry, error)
	var findByOID func(oid Hash, depth int) (resolvedEntry, error)

	resolve = func(idx int, depth int) (resolvedEntry, error) {
		if cached, ok := cache[idx]; ok {
			return cached, nil
		}
		if depth > 64 {
			return resolvedEntry{}, fmt.Errorf("entry %d: delta chain too deep", idx)
		}
		entry := pf.Entries[idx]
		var out resolvedEntry
		switch entry.Type {
		case PackCommit, PackTree, PackBlob, PackTag:
			out = resolvedEntry{data: entry.Data, typ: entry.Type}
		case PackOfsDelta:
			baseIdx, ok := byOffset[entry.BaseOffset]
			if !ok {
				return resolvedEntry{}, fmt.Errorf("entry %d: ofs-delta base offset %d not found", idx, entry.BaseOffset)
			}
			base, err := resolve(baseIdx, depth+1)
			if err != nil {
				return resolvedEntry{}, err
			}
			data, err := applyDelta(base.data, entry.Data)
			if err != nil {
				return resolvedEntry{}, fmt.Errorf("entry %d: apply ofs-delta: %w", idx, err)
			}
			out = resolvedEntry{data: data, typ: base.typ}
		case PackRefDelta:
			base, err := findByOID(entry.BaseRef, depth+1)
			if err != nil {
				return resolvedEntry{}, fmt.Errorf("entry %d: %w", idx, err)
			}
			data, err := applyDelta(base.data, entry.Data)
			if err != nil {
				return resolvedEntry{}, fmt.Errorf("entry %d: apply ref-delta: %w", idx, err)
			}
			out = resolvedEntry{data: data, typ: base.typ}
		default:
			return resolvedEntry{}, fmt.Errorf("entry %d: unsupported pack object type %d", idx, entry.Type)
		}
		cache[idx] = out
		return out, nil
	}

	// REF_DELTA bases are named by OID, not offset. Entries in this pack
	// don't carry precomputed OIDs, so a base lookup resolves candidates
	// (in offset order, cheapest first since most bases precede their
	// deltas) and hashes each until one matches.
	findByOID = func(oid Hash, depth int) (resolvedEntry, error) {
		for idx := range pf.Entries {
			r, err := resolve(idx, depth)
			if err != nil {
				continue
			}
			kind, err := packTypeToKind(r.typ)
			if err != nil {
				continue
			}
			if HashObject(algo, kind, r.data) == oid {
				return r, nil
			}
		}
		return resolvedEntry{}, fmt.Errorf("ref-delta base %s not found in pack", oid)
	}

	r, err := resolve(i, 0)
	if err != nil {
		return nil, 0, err
	}
	return r.data, r.typ, nil
}
