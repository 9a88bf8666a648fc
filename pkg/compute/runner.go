package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnknownKind is returned for an algorithm without a registered script.
var ErrUnknownKind = errors.New("unknown algorithm")

// Failure is reported when the script ran but signalled an error.
type Failure struct {
	Kind    string
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Scripts maps algorithm kinds to their script file names.
var Scripts = map[string]string{
	"alignment":            "alignment.py",
	"permutations":         "permutations.py",
	"permutation-search":   "permutation_search.py",
	"vertex-cover":         "vertex_cover.py",
	"trees":                "trees.py",
	"structure-prediction": "structure_prediction.py",
}

// ScriptRunner executes the external algorithm scripts with a JSON argument
// and relays their JSON stdout.
type ScriptRunner struct {
	interpreter string
	scriptsDir  string
	timeout     time.Duration
	scripts     map[string]string
}

// NewScriptRunner builds a runner for the given interpreter and script directory.
func NewScriptRunner(interpreter, scriptsDir string, timeout time.Duration) *ScriptRunner {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &ScriptRunner{interpreter: interpreter, scriptsDir: scriptsDir, timeout: timeout, scripts: Scripts}
}

// Kinds lists the supported algorithm kinds.
func (r *ScriptRunner) Kinds() []string {
	kinds := make([]string, 0, len(r.scripts))
	for k := range r.scripts {
		kinds = append(kinds, k)
	}
	return kinds
}

// Run executes the script registered for kind.
func (r *ScriptRunner) Run(ctx context.Context, kind string, input json.RawMessage) (json.RawMessage, error) {
	script, ok := r.scripts[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.interpreter, filepath.Join(r.scriptsDir, script), string(input))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", kind, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, &Failure{Kind: kind, Message: msg}
	}
	return ParseOutput(kind, stdout.Bytes())
}

// ParseOutput validates script stdout. An object carrying an "error" key is a failure.
func ParseOutput(kind string, raw []byte) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) {
		return nil, &Failure{Kind: kind, Message: "script produced invalid JSON"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err == nil {
		if msg, ok := fields["error"]; ok {
			var text string
			if err := json.Unmarshal(msg, &text); err != nil {
				text = string(msg)
			}
			return nil, &Failure{Kind: kind, Message: text}
		}
	}
	return json.RawMessage(raw), nil
}
