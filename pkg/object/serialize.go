package object

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/odvcencio/revise/pkg/reviseerr"
)

// ---------------------------------------------------------------------------
// Blob
// ---------------------------------------------------------------------------

// MarshalBlob returns the canonical body for a Blob: its bytes, unchanged.
func MarshalBlob(b *Blob) []byte {
	out := make([]byte, len(b.Data))
	copy(out, b.Data)
	return out
}

// UnmarshalBlob is the identity parse (a blob's body is opaque bytes).
func UnmarshalBlob(data []byte) (*Blob, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return &Blob{Data: out}, nil
}

// ---------------------------------------------------------------------------
// Tree
// ---------------------------------------------------------------------------

// treeSortKey is how an entry sorts: directories compare as if their name
// ended in "/", so a file "foo" sorts before "foo.txt", while a subtree
// named "foo" (compared as "foo/") sorts after "foo.txt".
func treeSortKey(e TreeEntry) string {
	if e.IsTree() {
		return e.Name + "/"
	}
	return e.Name
}

// SortEntries reorders entries into canonical order in place (§3: "Tree
// entries are always kept in canonical order; construction must
// re-sort").
func SortEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})
}

// MarshalTree serializes a Tree to its canonical wire form: entries are
// re-sorted, then each is "<mode> <name>\0<raw-oid-bytes>" concatenated.
func MarshalTree(t *Tree, algo Algo) ([]byte, error) {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	SortEntries(entries)

	seen := make(map[string]struct{}, len(entries))
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Name == "" || strings.ContainsRune(e.Name, '/') || strings.ContainsRune(e.Name, 0) {
			return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("tree entry name %q invalid", e.Name))
		}
		if _, dup := seen[e.Name]; dup {
			return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("tree has duplicate entry name %q", e.Name))
		}
		seen[e.Name] = struct{}{}

		raw, err := oidBytes(e.OID, algo)
		if err != nil {
			return nil, reviseerr.Wrap(reviseerr.CorruptObject, "tree entry oid", err)
		}
		fmt.Fprintf(&buf, "%s %s", e.Mode, e.Name)
		buf.WriteByte(0)
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

// UnmarshalTree parses a Tree body. Entries are accepted in whatever order
// the bytes have them (§4.1: "some historical repos may violate sort
// order"); callers that re-serialize must re-sort via MarshalTree.
func UnmarshalTree(data []byte, algo Algo) (*Tree, error) {
	width := algo.Width()
	t := &Tree{}
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, reviseerr.New(reviseerr.CorruptObject, "tree entry missing mode separator")
		}
		mode := string(data[:sp])
		rest := data[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, reviseerr.New(reviseerr.CorruptObject, "tree entry missing name terminator")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]
		if len(rest) < width {
			return nil, reviseerr.New(reviseerr.CorruptObject, "tree entry truncated oid")
		}
		oid := bytesToHash(rest[:width])
		data = rest[width:]

		t.Entries = append(t.Entries, TreeEntry{Name: name, Mode: normalizeMode(mode), OID: oid})
	}
	return t, nil
}

func normalizeMode(m string) string {
	// Tolerate a leading zero being dropped/added; canonical form has no
	// leading zero (a directory is "40000", not "040000").
	m = strings.TrimLeft(m, "0")
	if m == "" {
		return ModeTree
	}
	switch len(m) {
	case 5:
		return m
	case 6:
		return m
	}
	return m
}

// ---------------------------------------------------------------------------
// Commit
// ---------------------------------------------------------------------------

// MarshalCommit produces the canonical commit body: ordered headers, a
// blank line, then the raw message bytes.
func MarshalCommit(c *Commit) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	writeSignatureHeader(&buf, "author", c.Author)
	writeSignatureHeader(&buf, "committer", c.Committer)
	for _, h := range c.ExtraHeaders {
		writeContinuedHeader(&buf, h.Key, h.Value)
	}
	if c.GPGSig != "" {
		writeContinuedHeader(&buf, "gpgsig", c.GPGSig)
	}
	buf.WriteByte('\n')
	buf.Write(c.Message)
	return buf.Bytes()
}

func writeSignatureHeader(buf *bytes.Buffer, key string, sig Signature) {
	if sig.Invalid {
		fmt.Fprintf(buf, "%s %s\n", key, sig.Raw)
		return
	}
	fmt.Fprintf(buf, "%s %s <%s> %d %s\n", key, sig.Name, sig.Email, sig.Time, sig.TZ)
}

// writeContinuedHeader writes a possibly-multi-line header value, prefixing
// every line after the first with a single space (git's continuation
// convention), so gpgsig and other multi-line headers round-trip.
func writeContinuedHeader(buf *bytes.Buffer, key, value string) {
	lines := strings.Split(value, "\n")
	fmt.Fprintf(buf, "%s %s\n", key, lines[0])
	for _, l := range lines[1:] {
		fmt.Fprintf(buf, " %s\n", l)
	}
}

// UnmarshalCommit parses a commit body with continuation-aware headers
// (§4.1): a line beginning with a single space continues the previous
// header's value. Unknown headers are preserved verbatim in ExtraHeaders
// so untouched commits round-trip byte-for-byte (§3).
func UnmarshalCommit(data []byte) (*Commit, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, reviseerr.New(reviseerr.CorruptObject, "commit missing header/message separator")
	}
	header := string(data[:idx])
	message := data[idx+2:]

	c := &Commit{Message: append([]byte(nil), message...)}

	type rawHeader struct {
		key, value string
	}
	var raws []rawHeader
	for _, line := range strings.Split(header, "\n") {
		if strings.HasPrefix(line, " ") {
			if len(raws) == 0 {
				return nil, reviseerr.New(reviseerr.CorruptObject, "commit continuation line with no preceding header")
			}
			raws[len(raws)-1].value += "\n" + line[1:]
			continue
		}
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("commit malformed header line %q", line))
		}
		raws = append(raws, rawHeader{key: key, value: val})
	}

	for _, h := range raws {
		switch h.key {
		case "tree":
			c.Tree = Hash(h.value)
		case "parent":
			c.Parents = append(c.Parents, Hash(h.value))
		case "author":
			c.Author = parseSignature(h.value)
		case "committer":
			c.Committer = parseSignature(h.value)
		case "gpgsig":
			c.GPGSig = h.value
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: h.key, Value: h.value})
		}
	}
	return c, nil
}

// parseSignature parses "<name> <email> <ts> <tz>". A malformed signature
// is kept as raw text rather than erroring (§3: "malformed signature must
// not prevent loading the enclosing commit").
func parseSignature(s string) Signature {
	lt := strings.LastIndex(s, "<")
	gt := strings.LastIndex(s, ">")
	if lt < 0 || gt < lt {
		return Signature{Raw: s, Invalid: true}
	}
	name := strings.TrimSpace(s[:lt])
	email := s[lt+1 : gt]
	rest := strings.TrimSpace(s[gt+1:])
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return Signature{Raw: s, Invalid: true}
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{Raw: s, Invalid: true}
	}
	return Signature{Name: name, Email: email, Time: ts, TZ: fields[1], Raw: s}
}

// ---------------------------------------------------------------------------
// Tag
// ---------------------------------------------------------------------------

func MarshalTag(t *Tag) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Object)
	fmt.Fprintf(&buf, "type %s\n", t.Type)
	fmt.Fprintf(&buf, "tag %s\n", t.Tag)
	writeSignatureHeader(&buf, "tagger", t.Tagger)
	buf.WriteByte('\n')
	buf.Write(t.Message)
	return buf.Bytes()
}

func UnmarshalTag(data []byte) (*Tag, error) {
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return nil, reviseerr.New(reviseerr.CorruptObject, "tag missing header/message separator")
	}
	header := string(data[:idx])
	message := data[idx+2:]
	t := &Tag{Message: append([]byte(nil), message...)}
	for _, line := range strings.Split(header, "\n") {
		key, val, ok := strings.Cut(line, " ")
		if !ok {
			return nil, reviseerr.New(reviseerr.CorruptObject, fmt.Sprintf("tag malformed header line %q", line))
		}
		switch key {
		case "object":
			t.Object = Hash(val)
		case "type":
			t.Type = Kind(val)
		case "tag":
			t.Tag = val
		case "tagger":
			t.Tagger = parseSignature(val)
		}
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// OID byte helpers, shared with the pack layer
// ---------------------------------------------------------------------------

func oidBytes(h Hash, algo Algo) ([]byte, error) {
	if int(len(h)) != algo.Width()*2 {
		return nil, fmt.Errorf("oid %q does not match algorithm width", h)
	}
	return hexToBytes(string(h))
}

func hexToBytes(s string) ([]byte, error) {
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexNibble(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexNibble(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex digit %q", b)
	}
}

func bytesToHash(b []byte) Hash {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xf]
	}
	return Hash(out)
}
