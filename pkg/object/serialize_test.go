package object

import (
	"bytes"
	"reflect"
	"testing"
)

// fillHash builds a syntactically valid OID of the width algo requires,
// every byte set to b, for tests that only care about width and identity.
func fillHash(algo Algo, b byte) Hash {
	buf := make([]byte, algo.Width())
	for i := range buf {
		buf[i] = b
	}
	return bytesToHash(buf)
}

func TestBlobRoundTrip(t *testing.T) {
	data := []byte("binary\x00data\nwith\nnewlines and \x01 control bytes")

	b, err := UnmarshalBlob(data)
	if err != nil {
		t.Fatalf("UnmarshalBlob: %v", err)
	}
	if !bytes.Equal(b.Data, data) {
		t.Fatalf("UnmarshalBlob mismatch: got %q want %q", b.Data, data)
	}

	out := MarshalBlob(b)
	if !bytes.Equal(out, data) {
		t.Fatalf("serialize(parse(b)) != b: got %q want %q", out, data)
	}
}

func TestTreeRoundTrip_MixedModes(t *testing.T) {
	for _, algo := range []Algo{AlgoSHA1, AlgoSHA256} {
		t.Run(string(algo), func(t *testing.T) {
			entries := []TreeEntry{
				{Name: "zeta.txt", Mode: ModeFile, OID: fillHash(algo, 0x01)},
				{Name: "bin", Mode: ModeExecutable, OID: fillHash(algo, 0x02)},
				{Name: "link", Mode: ModeSymlink, OID: fillHash(algo, 0x03)},
				{Name: "sub", Mode: ModeTree, OID: fillHash(algo, 0x04)},
				{Name: "gitlink", Mode: ModeGitlink, OID: fillHash(algo, 0x05)},
				{Name: "alpha.txt", Mode: ModeFile, OID: fillHash(algo, 0x06)},
			}

			tree := &Tree{Entries: append([]TreeEntry(nil), entries...)}
			data, err := MarshalTree(tree, algo)
			if err != nil {
				t.Fatalf("MarshalTree: %v", err)
			}

			parsed, err := UnmarshalTree(data, algo)
			if err != nil {
				t.Fatalf("UnmarshalTree: %v", err)
			}

			wantSorted := append([]TreeEntry(nil), entries...)
			SortEntries(wantSorted)
			if !reflect.DeepEqual(parsed.Entries, wantSorted) {
				t.Fatalf("parse(serialize(x)) != x:\ngot  %+v\nwant %+v", parsed.Entries, wantSorted)
			}

			data2, err := MarshalTree(parsed, algo)
			if err != nil {
				t.Fatalf("MarshalTree(parsed): %v", err)
			}
			if !bytes.Equal(data, data2) {
				t.Fatalf("serialize(parse(b)) != b:\ngot  %x\nwant %x", data2, data)
			}
		})
	}
}

func TestCommitRoundTrip_WithGPGSigAndExtraHeaders(t *testing.T) {
	c := &Commit{
		Tree:    fillHash(AlgoSHA1, 0x11),
		Parents: []Hash{fillHash(AlgoSHA1, 0x22), fillHash(AlgoSHA1, 0x33)},
		Author: Signature{
			Name: "A U Thor", Email: "author@example.com",
			Time: 1700000000, TZ: "+0000",
		},
		Committer: Signature{
			Name: "C O Mitter", Email: "committer@example.com",
			Time: 1700000100, TZ: "-0500",
		},
		ExtraHeaders: []ExtraHeader{
			{Key: "mergetag", Value: "object " + string(fillHash(AlgoSHA1, 0x44)) + "\ntype commit\ntag v1\n"},
		},
		GPGSig:  "-----BEGIN PGP SIGNATURE-----\n\niQIzBAABCgAdFiEE\n=abcd\n-----END PGP SIGNATURE-----",
		Message: []byte("Merge branch 'feature'\n\nDetails here.\n"),
	}

	body := MarshalCommit(c)

	parsed, err := UnmarshalCommit(body)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if parsed.Tree != c.Tree {
		t.Fatalf("Tree = %s, want %s", parsed.Tree, c.Tree)
	}
	if !reflect.DeepEqual(parsed.Parents, c.Parents) {
		t.Fatalf("Parents = %v, want %v", parsed.Parents, c.Parents)
	}
	if parsed.Author.Name != c.Author.Name || parsed.Author.Email != c.Author.Email ||
		parsed.Author.Time != c.Author.Time || parsed.Author.TZ != c.Author.TZ || parsed.Author.Invalid {
		t.Fatalf("Author = %+v, want %+v", parsed.Author, c.Author)
	}
	if parsed.Committer.Name != c.Committer.Name || parsed.Committer.Email != c.Committer.Email ||
		parsed.Committer.Time != c.Committer.Time || parsed.Committer.TZ != c.Committer.TZ || parsed.Committer.Invalid {
		t.Fatalf("Committer = %+v, want %+v", parsed.Committer, c.Committer)
	}
	if parsed.GPGSig != c.GPGSig {
		t.Fatalf("GPGSig = %q, want %q", parsed.GPGSig, c.GPGSig)
	}
	if !reflect.DeepEqual(parsed.ExtraHeaders, c.ExtraHeaders) {
		t.Fatalf("ExtraHeaders = %+v, want %+v", parsed.ExtraHeaders, c.ExtraHeaders)
	}
	if !bytes.Equal(parsed.Message, c.Message) {
		t.Fatalf("Message = %q, want %q", parsed.Message, c.Message)
	}

	body2 := MarshalCommit(parsed)
	if !bytes.Equal(body, body2) {
		t.Fatalf("serialize(parse(b)) != b:\ngot:\n%s\nwant:\n%s", body2, body)
	}
}

// TestCommitMalformedSignatureRoundTrips exercises §3's "a malformed
// signature must not prevent loading the enclosing commit": author and
// committer lines with no "<email>" are kept verbatim rather than
// rejected, and the commit still round-trips byte for byte.
func TestCommitMalformedSignatureRoundTrips(t *testing.T) {
	body := []byte("tree " + string(fillHash(AlgoSHA1, 0x01)) + "\n" +
		"author not-a-valid-signature-line\n" +
		"committer also-not-valid\n" +
		"\n" +
		"message body\n")

	c, err := UnmarshalCommit(body)
	if err != nil {
		t.Fatalf("UnmarshalCommit: %v", err)
	}
	if !c.Author.Invalid || c.Author.Raw != "not-a-valid-signature-line" {
		t.Fatalf("Author = %+v, want Invalid Raw=%q", c.Author, "not-a-valid-signature-line")
	}
	if !c.Committer.Invalid || c.Committer.Raw != "also-not-valid" {
		t.Fatalf("Committer = %+v, want Invalid Raw=%q", c.Committer, "also-not-valid")
	}

	out := MarshalCommit(c)
	if !bytes.Equal(out, body) {
		t.Fatalf("serialize(parse(b)) != b:\ngot:\n%s\nwant:\n%s", out, body)
	}
}

func TestTagRoundTrip(t *testing.T) {
	tag := &Tag{
		Object: fillHash(AlgoSHA256, 0x77),
		Type:   KindCommit,
		Tag:    "v1.2.3",
		Tagger: Signature{
			Name: "Releaser", Email: "releaser@example.com",
			Time: 1700000200, TZ: "+0200",
		},
		Message: []byte("Release 1.2.3\n"),
	}

	body := MarshalTag(tag)
	parsed, err := UnmarshalTag(body)
	if err != nil {
		t.Fatalf("UnmarshalTag: %v", err)
	}
	if parsed.Object != tag.Object || parsed.Type != tag.Type || parsed.Tag != tag.Tag {
		t.Fatalf("parsed = %+v, want %+v", parsed, tag)
	}
	if parsed.Tagger.Name != tag.Tagger.Name || parsed.Tagger.Email != tag.Tagger.Email ||
		parsed.Tagger.Time != tag.Tagger.Time || parsed.Tagger.TZ != tag.Tagger.TZ {
		t.Fatalf("Tagger = %+v, want %+v", parsed.Tagger, tag.Tagger)
	}
	if !bytes.Equal(parsed.Message, tag.Message) {
		t.Fatalf("Message = %q, want %q", parsed.Message, tag.Message)
	}

	body2 := MarshalTag(parsed)
	if !bytes.Equal(body, body2) {
		t.Fatalf("serialize(parse(b)) != b:\ngot:\n%s\nwant:\n%s", body2, body)
	}
}

// TestObjectCodecRoundTrip exercises the top-level Parse/Serialize
// dispatch (codec.go) for all four kinds, the exact
// "parse(serialize(x)) = x" invariant named in §8.
func TestObjectCodecRoundTrip(t *testing.T) {
	algo := AlgoSHA1

	cases := []*Object{
		{Kind: KindBlob, Blob: &Blob{Data: []byte("hello world\n")}},
		{Kind: KindTree, Tree: &Tree{Entries: []TreeEntry{
			{Name: "a.txt", Mode: ModeFile, OID: fillHash(algo, 0x01)},
			{Name: "b", Mode: ModeTree, OID: fillHash(algo, 0x02)},
		}}},
		{Kind: KindCommit, Commit: &Commit{
			Tree:      fillHash(algo, 0x03),
			Author:    Signature{Name: "A", Email: "a@example.com", Time: 1, TZ: "+0000"},
			Committer: Signature{Name: "A", Email: "a@example.com", Time: 1, TZ: "+0000"},
			Message:   []byte("initial\n"),
		}},
		{Kind: KindTag, Tag: &Tag{
			Object: fillHash(algo, 0x04), Type: KindCommit, Tag: "v1",
			Tagger:  Signature{Name: "A", Email: "a@example.com", Time: 1, TZ: "+0000"},
			Message: []byte("tag message\n"),
		}},
	}

	for _, obj := range cases {
		t.Run(string(obj.Kind), func(t *testing.T) {
			body, err := Serialize(obj, algo)
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			parsed, err := Parse(obj.Kind, body, algo)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			body2, err := Serialize(parsed, algo)
			if err != nil {
				t.Fatalf("Serialize(parsed): %v", err)
			}
			if !bytes.Equal(body, body2) {
				t.Fatalf("serialize(parse(b)) != b:\ngot:\n%x\nwant:\n%x", body2, body)
			}
		})
	}
}
