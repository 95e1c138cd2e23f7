package reviserepo

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config resolves the dotted-name keys spec.md §6 lists ("revise.autoSquash",
// "commit.gpgSign", "core.commentChar", ...) with the two-tier lookup
// SPEC_FULL.md §2 describes: the underlying VCS's own config plumbing
// first (so revise respects whatever the user already has in
// ~/.gitconfig or the repo's .git/config), then a `.revise.toml` file in
// the repository root for the revise.*-namespaced keys the VCS has never
// heard of. This generalizes the teacher's flat get/set config reader
// (pkg/repo/config.go) into a typed accessor with fallback chains.
type Config struct {
	toml map[string]any
}

// revise.toml on-disk shape, e.g.:
//
//	[revise]
//	autoSquash = true
//
//	[rerere]
//	enabled = true
type reviseTOML struct {
	Revise struct {
		AutoSquash   *bool `toml:"autoSquash"`
		RunHooksCMsg *bool `toml:"run-hooks.commit-msg"`
	} `toml:"revise"`
	Rerere struct {
		Enabled    *bool `toml:"enabled"`
		AutoUpdate *bool `toml:"autoUpdate"`
	} `toml:"rerere"`
}

func (r *Repo) toolConfigPath() string {
	return filepath.Join(r.RootDir, ".revise.toml")
}

// LoadConfig reads .revise.toml. A missing file is not an error: it just
// means every revise.*/rerere.* key falls through to the VCS's own config
// or to spec.md's documented default.
func (r *Repo) LoadConfig() (*Config, error) {
	if r.config != nil {
		return r.config, nil
	}
	cfg := &Config{}
	data, err := os.ReadFile(r.toolConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			r.config = cfg
			return cfg, nil
		}
		return nil, err
	}
	var parsed reviseTOML
	if _, err := toml.Decode(string(data), &parsed); err != nil {
		return nil, err
	}
	cfg.toml = map[string]any{}
	if parsed.Revise.AutoSquash != nil {
		cfg.toml["revise.autoSquash"] = *parsed.Revise.AutoSquash
	}
	if parsed.Revise.RunHooksCMsg != nil {
		cfg.toml["revise.run-hooks.commit-msg"] = *parsed.Revise.RunHooksCMsg
	}
	if parsed.Rerere.Enabled != nil {
		cfg.toml["rerere.enabled"] = *parsed.Rerere.Enabled
	}
	if parsed.Rerere.AutoUpdate != nil {
		cfg.toml["rerere.autoUpdate"] = *parsed.Rerere.AutoUpdate
	}
	r.config = cfg
	return cfg, nil
}

// StringConfig resolves a dotted key as a string: VCS config plumbing
// first, then the given default.
func (r *Repo) StringConfig(key, def string) string {
	if v, ok := r.Bridge.ConfigGet(key); ok {
		return v
	}
	return def
}

// BoolConfig resolves a dotted key as a boolean (§6), consulting the VCS's
// own config, then .revise.toml for revise.*/rerere.* keys, then def.
func (r *Repo) BoolConfig(key string, def bool) bool {
	if v, ok := r.Bridge.ConfigGet(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	cfg, err := r.LoadConfig()
	if err == nil && cfg.toml != nil {
		if v, ok := cfg.toml[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return def
}

// AutoSquashEnabled implements §6's revise.autoSquash falling back to
// rebase.autoSquash (SPEC_FULL.md §2).
func (r *Repo) AutoSquashEnabled() bool {
	return r.BoolConfig("revise.autoSquash", r.BoolConfig("rebase.autoSquash", false))
}

// RunCommitMsgHook reports revise.run-hooks.commit-msg (default false).
func (r *Repo) RunCommitMsgHook() bool {
	return r.BoolConfig("revise.run-hooks.commit-msg", false)
}

// GPGSignEnabled reports commit.gpgSign (default false).
func (r *Repo) GPGSignEnabled() bool {
	return r.BoolConfig("commit.gpgSign", false)
}

// RerereEnabled reports rerere.enabled (default false unless an rr-cache
// directory already exists, matching odb.py's
// `bool_config("rerere.enabled", default=rr_cache.is_dir())`).
func (r *Repo) RerereEnabled() bool {
	rrCache := filepath.Join(r.CommonDir, "rr-cache")
	hasCache := false
	if st, err := os.Stat(rrCache); err == nil && st.IsDir() {
		hasCache = true
	}
	return r.BoolConfig("rerere.enabled", hasCache)
}

// RerereAutoUpdate reports rerere.autoUpdate (default false).
func (r *Repo) RerereAutoUpdate() bool {
	return r.BoolConfig("rerere.autoUpdate", false)
}

// hasConfigValue scans a git INI-format config blob for `key = value`
// (case-insensitive on both sides), used only for the object-format probe
// in detectAlgo: that check runs before a Store exists, so it can't yet
// shell out through the ordinary Bridge.ConfigGet path.
func hasConfigValue(data, key, value string) bool {
	key = strings.ToLower(key)
	value = strings.ToLower(value)
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.ToLower(strings.TrimSpace(k)) == key && strings.ToLower(strings.TrimSpace(v)) == value {
			return true
		}
	}
	return false
}
