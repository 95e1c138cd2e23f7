// Package revparse implements the slice of the VCS revision grammar the
// tool needs (§4.4): a bare OID (full or abbreviated), a ref name, a peel
// suffix, a first-parent step, and an ancestor step.
package revparse

import (
	"strconv"
	"strings"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// RefResolver resolves symbolic names ("HEAD", "main", "refs/heads/main")
// to object identifiers; a repository handle satisfies this.
type RefResolver interface {
	ResolveRef(name string) (object.Hash, error)
}

// ObjectGetter is the subset of the object cache revparse needs: exact and
// abbreviated OID lookup, both required to be unique (§4.3).
type ObjectGetter interface {
	Get(oid object.Hash) (*object.Object, error)
	GetAbbrev(prefix string) (object.Hash, *object.Object, error)
}

// Resolve parses spec against the grammar above and returns the OID it
// names. An empty spec defaults to "HEAD".
func Resolve(spec string, refs RefResolver, objs ObjectGetter) (object.Hash, error) {
	if spec == "" {
		spec = "HEAD"
	}

	cut := len(spec)
	for i, c := range spec {
		if c == '^' || c == '~' {
			cut = i
			break
		}
	}
	base, suffix := spec[:cut], spec[cut:]

	oid, err := resolveBase(base, refs, objs)
	if err != nil {
		return "", err
	}

	return applySuffix(oid, suffix, objs)
}

func resolveBase(base string, refs RefResolver, objs ObjectGetter) (object.Hash, error) {
	if base == "" {
		base = "HEAD"
	}
	if looksLikeHex(base) {
		oid, _, err := objs.GetAbbrev(strings.ToLower(base))
		if err == nil {
			return oid, nil
		}
		if !reviseerr.Is(err, reviseerr.MissingObject) {
			return "", err
		}
		// fall through: might be a ref name that happens to be all hex digits
	}
	oid, err := refs.ResolveRef(base)
	if err != nil {
		return "", reviseerr.Wrap(reviseerr.BadRevision, "resolve "+base, err)
	}
	return oid, nil
}

func looksLikeHex(s string) bool {
	if len(s) < 4 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func applySuffix(oid object.Hash, suffix string, objs ObjectGetter) (object.Hash, error) {
	pos := 0
	for pos < len(suffix) {
		switch suffix[pos] {
		case '^':
			pos++
			switch {
			case pos < len(suffix) && suffix[pos] == '{':
				end := strings.IndexByte(suffix[pos:], '}')
				if end < 0 {
					return "", reviseerr.New(reviseerr.BadRevision, "unterminated ^{...} in "+suffix)
				}
				kind := suffix[pos+1 : pos+end]
				pos += end + 1
				var err error
				oid, err = peel(oid, kind, objs)
				if err != nil {
					return "", err
				}
			case pos < len(suffix) && isDigit(suffix[pos]):
				n, consumed := readDigits(suffix[pos:])
				pos += consumed
				var err error
				oid, err = nthParent(oid, n, objs)
				if err != nil {
					return "", err
				}
			default:
				var err error
				oid, err = nthParent(oid, 1, objs)
				if err != nil {
					return "", err
				}
			}
		case '~':
			pos++
			n := 1
			if pos < len(suffix) && isDigit(suffix[pos]) {
				var consumed int
				n, consumed = readDigits(suffix[pos:])
				pos += consumed
			}
			for i := 0; i < n; i++ {
				var err error
				oid, err = nthParent(oid, 1, objs)
				if err != nil {
					return "", err
				}
			}
		default:
			return "", reviseerr.New(reviseerr.BadRevision, "unexpected character in revision suffix: "+suffix[pos:])
		}
	}
	return oid, nil
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func readDigits(s string) (int, int) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	n, _ := strconv.Atoi(s[:i])
	return n, i
}

// nthParent resolves the n-th parent (1-indexed) of the commit at oid. n==0
// is the identity operation ("^0").
func nthParent(oid object.Hash, n int, objs ObjectGetter) (object.Hash, error) {
	if n == 0 {
		return oid, nil
	}
	o, err := objs.Get(oid)
	if err != nil {
		return "", err
	}
	if o.Kind != object.KindCommit {
		return "", reviseerr.New(reviseerr.BadRevision, string(oid)+" is not a commit")
	}
	if n > len(o.Commit.Parents) {
		return "", reviseerr.New(reviseerr.BadRevision, string(oid)+" does not have a parent number "+strconv.Itoa(n))
	}
	return o.Commit.Parents[n-1], nil
}

// peel dereferences oid until it reaches an object of the named kind
// ("commit", "tree", "tag", or "" for "peel tags until non-tag").
func peel(oid object.Hash, kind string, objs ObjectGetter) (object.Hash, error) {
	for {
		o, err := objs.Get(oid)
		if err != nil {
			return "", err
		}
		switch kind {
		case "":
			if o.Kind != object.KindTag {
				return oid, nil
			}
			oid = o.Tag.Object
			continue
		case "commit":
			switch o.Kind {
			case object.KindCommit:
				return oid, nil
			case object.KindTag:
				oid = o.Tag.Object
				continue
			default:
				return "", reviseerr.New(reviseerr.BadRevision, string(oid)+" cannot be peeled to a commit")
			}
		case "tree":
			switch o.Kind {
			case object.KindTree:
				return oid, nil
			case object.KindCommit:
				return o.Commit.Tree, nil
			case object.KindTag:
				oid = o.Tag.Object
				continue
			default:
				return "", reviseerr.New(reviseerr.BadRevision, string(oid)+" cannot be peeled to a tree")
			}
		case "tag":
			if o.Kind != object.KindTag {
				return "", reviseerr.New(reviseerr.BadRevision, string(oid)+" is not a tag")
			}
			return oid, nil
		default:
			return "", reviseerr.New(reviseerr.BadRevision, "unsupported peel target "+kind)
		}
	}
}
