// Package rewrite implements the rewrite engine (§4.7): computing the
// range of commits between a target and the current head, replaying a
// todo program over that range through the tree merge engine. It writes
// no refs: the caller lands the result with a single compare-and-swap
// ref update.
package rewrite

import (
	"fmt"

	"github.com/odvcencio/revise/pkg/object"
	"github.com/odvcencio/revise/pkg/reviseerr"
)

// CommitStore is the subset of the object cache the rewrite engine reads
// commits through.
type CommitStore interface {
	GetCommit(oid object.Hash) (*object.Commit, error)
}

// CommitRange walks the first-parent chain from head back to target,
// returning the commits strictly between them plus head itself, oldest
// first (so the last element is always head). A zero target means "walk
// to the root commit". Any commit in the walk with more than one parent
// is a MergeInRange error (§4.7 step 1): rewriting through a merge isn't
// supported.
func CommitRange(commits CommitStore, head, target object.Hash) ([]object.Hash, error) {
	var chain []object.Hash
	cur := head
	for cur != target {
		if cur.IsZero() {
			return nil, reviseerr.New(reviseerr.BadRevision, fmt.Sprintf("%s is not an ancestor of %s", target, head))
		}
		c, err := commits.GetCommit(cur)
		if err != nil {
			return nil, err
		}
		if len(c.Parents) > 1 {
			return nil, reviseerr.New(reviseerr.MergeInRange, fmt.Sprintf("merge commit %s in rewrite range", cur))
		}
		chain = append(chain, cur)
		if len(c.Parents) == 0 {
			cur = ""
			continue
		}
		cur = c.Parents[0]
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
