package object

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/odvcencio/revise/pkg/reviseerr"
)

// Object is the closed four-variant tagged union (§3, §9): every caller
// needing kind-specific behavior switches on Kind rather than relying on
// open polymorphism.
type Object struct {
	Kind   Kind
	Blob   *Blob
	Tree   *Tree
	Commit *Commit
	Tag    *Tag
}

// Serialize produces the canonical body bytes for whichever variant is
// set, without hashing or compressing.
func Serialize(o *Object, algo Algo) ([]byte, error) {
	switch o.Kind {
	case KindBlob:
		return MarshalBlob(o.Blob), nil
	case KindTree:
		return MarshalTree(o.Tree, algo)
	case KindCommit:
		return MarshalCommit(o.Commit), nil
	case KindTag:
		return MarshalTag(o.Tag), nil
	default:
		return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("unknown object kind %q", o.Kind))
	}
}

// OID hashes the canonical body of o.
func OID(o *Object, algo Algo) (Hash, error) {
	body, err := Serialize(o, algo)
	if err != nil {
		return "", err
	}
	return HashObject(algo, o.Kind, body), nil
}

// Parse decodes a body of the given kind into an Object. The codec never
// touches the filesystem; callers are responsible for locating and
// decompressing bytes first.
func Parse(kind Kind, body []byte, algo Algo) (*Object, error) {
	switch kind {
	case KindBlob:
		b, err := UnmarshalBlob(body)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindBlob, Blob: b}, nil
	case KindTree:
		t, err := UnmarshalTree(body, algo)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindTree, Tree: t}, nil
	case KindCommit:
		c, err := UnmarshalCommit(body)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindCommit, Commit: c}, nil
	case KindTag:
		t, err := UnmarshalTag(body)
		if err != nil {
			return nil, err
		}
		return &Object{Kind: KindTag, Tag: t}, nil
	default:
		return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("unknown object kind %q", kind))
	}
}

// DecompressLoose inflates a zlib-deflated loose-object file's contents and
// splits the "<kind> <len>\0" envelope from the body (§4.1, §6).
func DecompressLoose(raw []byte, algo Algo) (Kind, []byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return "", nil, reviseerr.Wrap(reviseerr.CorruptObject, "loose object zlib header", err)
	}
	defer zr.Close()

	envelope, err := io.ReadAll(zr)
	if err != nil {
		return "", nil, reviseerr.Wrap(reviseerr.CorruptObject, "loose object inflate", err)
	}

	nul := bytes.IndexByte(envelope, 0)
	if nul < 0 {
		return "", nil, reviseerr.New(reviseerr.CorruptObject, "loose object envelope missing NUL")
	}
	header := string(envelope[:nul])
	var kind string
	var length int
	if _, err := fmt.Sscanf(header, "%s %d", &kind, &length); err != nil {
		return "", nil, reviseerr.Wrap(reviseerr.CorruptObject, "loose object envelope header", err)
	}
	body := envelope[nul+1:]
	if len(body) != length {
		return "", nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("loose object length mismatch: header=%d actual=%d", length, len(body)))
	}
	return Kind(kind), body, nil
}

// CompressLoose builds the zlib-deflated on-disk form of a loose object.
func CompressLoose(kind Kind, body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	fmt.Fprintf(zw, "%s %d\x00", kind, len(body))
	if _, err := zw.Write(body); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compress loose object: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress loose object: close: %w", err)
	}
	return buf.Bytes(), nil
}
