// Package policy implements the three command-specific hook bundles —
// nonet, hidehome, isolate — each a runtime.Hooks realization carrying its
// own namespace flag set, ID-map plan, and mount-tree plan. Configuration
// travels across the orchestrator's re-exec boundary as base64-encoded
// JSON in the SANDBOXCTL_POLICY environment variable.
package policy

import (
	"encoding/base64"
	"encoding/json"
	"os"

	serr "sandboxctl/errors"
	"sandboxctl/runtime"
)

// EnvVar is the environment variable carrying a policy's serialized
// configuration across each re-exec stage.
const EnvVar = "SANDBOXCTL_POLICY"

// Config is the superset of fields any policy may need; each policy reads
// only the fields it recognizes. Kept as one struct (rather than one type
// per policy plus a tagged union) since the set is small: the CLI flags plus
// the few values AtStart resolves.
type Config struct {
	Kind string `json:"kind"` // "nonet" | "hidehome" | "isolate"

	// Cmd is the final command and arguments to exec.
	Cmd []string `json:"cmd"`

	// Isolate-specific CLI flags.
	Net   bool     `json:"net,omitempty"`
	Chdir string   `json:"chdir,omitempty"`
	NoPWD bool     `json:"no_pwd,omitempty"`
	RW    []string `json:"rw,omitempty"`
	RO    []string `json:"ro,omitempty"`
	Tmp   []string `json:"tmp,omitempty"`

	// IsUser and TempPath are resolved by Isolate.AtStart in the original
	// process and republished so stage1/stage2 (separate OS processes)
	// see the same values rather than recomputing them.
	IsUser   bool   `json:"isuser,omitempty"`
	TempPath string `json:"temp_path,omitempty"`

	// Cwd is the resolved working directory, shared by isolate and
	// hidehome for the same reason as IsUser/TempPath above.
	Cwd string `json:"cwd,omitempty"`

	// Home and Root are resolved by HideHome.AtStart and republished for
	// the same cross-process reason.
	Home string `json:"home,omitempty"`
	Root string `json:"root,omitempty"`
}

// Publish re-encodes cfg and sets it as the current process's
// SANDBOXCTL_POLICY, so that a later exec.Command using os.Environ()
// picks up fields resolved after the process started (AtStart's job).
func Publish(cfg Config) error {
	encoded, err := Encode(cfg)
	if err != nil {
		return err
	}
	return os.Setenv(EnvVar, encoded)
}

// Encode serializes cfg for SANDBOXCTL_POLICY.
func Encode(cfg Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", serr.Wrap(err, serr.ErrInvalidConfig, "encode policy config")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode.
func Decode(s string) (Config, error) {
	var cfg Config
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return cfg, serr.Wrap(err, serr.ErrInvalidConfig, "decode policy config")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, serr.Wrap(err, serr.ErrInvalidConfig, "unmarshal policy config")
	}
	return cfg, nil
}

// FromEnv reads and decodes the policy config from SANDBOXCTL_POLICY.
func FromEnv() (Config, error) {
	v := os.Getenv(EnvVar)
	if v == "" {
		return Config{}, serr.ErrNoPolicy
	}
	return Decode(v)
}

// EnvPair returns the "NAME=VALUE" string to append to exec.Cmd.Env.
func EnvPair(cfg Config) (string, error) {
	encoded, err := Encode(cfg)
	if err != nil {
		return "", err
	}
	return EnvVar + "=" + encoded, nil
}

// HooksFromConfig reconstructs the hook bundle matching cfg.Kind. Used by
// the stage1/stage2 re-exec entry points, which only ever learn the
// policy through FromEnv, never through the CLI flags that built it.
func HooksFromConfig(cfg Config) (runtime.Hooks, error) {
	switch cfg.Kind {
	case "nonet":
		return NoNetFromConfig(cfg), nil
	case "hidehome":
		return HideHomeFromConfig(cfg), nil
	case "isolate":
		return IsolateFromConfig(cfg), nil
	default:
		return nil, serr.New(serr.ErrInvalidConfig, "policy", "unknown policy kind "+cfg.Kind)
	}
}
