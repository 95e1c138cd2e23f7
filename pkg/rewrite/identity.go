package rewrite

import (
	"time"

	"github.com/odvcencio/revise/pkg/object"
)

// ConfigGetter is the subset of the VCS bridge identity resolution needs:
// dotted config key lookup.
type ConfigGetter interface {
	ConfigGet(key string) (string, bool)
}

// CurrentUser builds a Signature for "the current user & time" (§4.7:
// every new commit's committer identity), reading user.name/user.email
// through the VCS's own config plumbing and falling back to a placeholder
// for whichever of the two is not configured, matching the VCS's own behavior of
// never silently fabricating a plausible-looking identity.
func CurrentUser(cfg ConfigGetter) object.Signature {
	name, ok := cfg.ConfigGet("user.name")
	if !ok || name == "" {
		name = "unknown"
	}
	email, ok := cfg.ConfigGet("user.email")
	if !ok || email == "" {
		email = "unknown@localhost"
	}
	now := time.Now()
	return object.Signature{
		Name:  name,
		Email: email,
		Time:  now.Unix(),
		TZ:    now.Format("-0700"),
	}
}
