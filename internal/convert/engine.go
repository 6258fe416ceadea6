package convert

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Options are passed through to the engine untouched.
type Options struct {
	IncludeImages bool `json:"include_images"`
	IncludeTables bool `json:"include_tables"`
}

// Result is the terminal outcome of a conversion, stored on the job and
// returned directly by the synchronous endpoint.
type Result struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Content  string         `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Engine is the external conversion collaborator. Calls block for the full
// duration of the conversion and are not interruptible beyond ctx.
type Engine interface {
	Convert(ctx context.Context, filename string, data []byte, format Format, opts Options) (content string, metadata map[string]any, err error)
	Available() bool
}

// Runner lets us stub the external command in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	return out.Bytes(), errb.Bytes(), err
}

// ExecEngine runs a docling-compatible CLI. The input is staged as a temp file
// with its original extension so the tool can sniff the source format; the
// converted content is read from stdout.
type ExecEngine struct {
	bin    string
	runner Runner
}

func NewExecEngine(bin string) *ExecEngine {
	if bin == "" {
		bin = "docling"
	}
	return &ExecEngine{bin: bin, runner: execRunner{}}
}

// NewExecEngineWithRunner is used by tests to stub command execution.
func NewExecEngineWithRunner(bin string, r Runner) *ExecEngine {
	return &ExecEngine{bin: bin, runner: r}
}

func (e *ExecEngine) Available() bool {
	_, err := exec.LookPath(e.bin)
	return err == nil
}

func (e *ExecEngine) Convert(ctx context.Context, filename string, data []byte, format Format, opts Options) (string, map[string]any, error) {
	tmp, err := os.CreateTemp("", "convertd-*"+filepath.Ext(filename))
	if err != nil {
		return "", nil, fmt.Errorf("stage input: %w", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", nil, fmt.Errorf("stage input: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", nil, fmt.Errorf("stage input: %w", err)
	}

	args := []string{
		"--to", string(format),
		fmt.Sprintf("--images=%t", opts.IncludeImages),
		fmt.Sprintf("--tables=%t", opts.IncludeTables),
		path,
	}

	stdout, stderr, err := e.runner.Run(ctx, e.bin, args...)
	if err != nil {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return "", nil, fmt.Errorf("convert %s: %s", filename, msg)
	}

	metadata := map[string]any{
		"conversion_status": "success",
	}
	return string(stdout), metadata, nil
}
