package object

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
)

// Algo selects the digest used to compute object identifiers. A repository
// picks one at creation time (extensions.objectFormat = sha1 | sha256);
// mixing widths within one store is not supported (§3: "20 or 32 bytes
// depending on repo config").
type Algo string

const (
	AlgoSHA1   Algo = "sha1"
	AlgoSHA256 Algo = "sha256"
)

// Width returns the digest width in bytes for the algorithm.
func (a Algo) Width() int {
	if a == AlgoSHA256 {
		return 32
	}
	return 20
}

func (a Algo) new() hash.Hash {
	if a == AlgoSHA256 {
		return sha256.New()
	}
	return sha1.New()
}

// HashObject computes the OID for a decompressed object payload: the hash
// of "<kind> <len>\0" followed by the canonical serialized body (§3).
func HashObject(algo Algo, kind Kind, body []byte) Hash {
	h := algo.new()
	fmt.Fprintf(h, "%s %d\x00", kind, len(body))
	h.Write(body)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// AlgoForHash infers the algorithm from a hash's hex length.
func AlgoForHash(h Hash) (Algo, error) {
	switch len(h) {
	case 40:
		return AlgoSHA1, nil
	case 64:
		return AlgoSHA256, nil
	default:
		return "", fmt.Errorf("object: hash %q has unrecognized length %d", h, len(h))
	}
}
