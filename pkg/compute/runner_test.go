package compute

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutput(t *testing.T) {
	out, err := ParseOutput("trees", []byte(` {"newick":"(a,b);"} `))
	require.NoError(t, err)
	assert.JSONEq(t, `{"newick":"(a,b);"}`, string(out))

	_, err = ParseOutput("trees", []byte(`{"error":"matrix is not square"}`))
	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "matrix is not square", failure.Message)

	_, err = ParseOutput("trees", []byte(`not json`))
	require.True(t, errors.As(err, &failure))
}

func TestRunUnknownKind(t *testing.T) {
	r := NewScriptRunner("python3", t.TempDir(), time.Second)
	_, err := r.Run(context.Background(), "astrology", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRunRelaysScriptOutput(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	// the interpreter receives the script path followed by the JSON argument
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alignment.py"), []byte(`printf '%s' "$1"`), 0o644))

	r := NewScriptRunner(sh, dir, 5*time.Second)
	out, err := r.Run(context.Background(), "alignment", json.RawMessage(`{"seqs":["ACGT","AGT"]}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"seqs":["ACGT","AGT"]}`, string(out))
}
