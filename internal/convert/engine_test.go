package convert

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("markdown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != FormatMarkdown {
		t.Errorf("expected markdown, got %s", f)
	}
}

func TestParseFormat_Invalid(t *testing.T) {
	_, err := ParseFormat("pdf")
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSupportedFile(t *testing.T) {
	if !SupportedFile("report.PDF") {
		t.Error("expected .PDF to be supported")
	}
	if !SupportedFile("notes.md") {
		t.Error("expected .md to be supported")
	}
	if SupportedFile("archive.zip") {
		t.Error("expected .zip to be unsupported")
	}
	if SupportedFile("noextension") {
		t.Error("expected extensionless name to be unsupported")
	}
}

type fakeRunner struct {
	stdout []byte
	stderr []byte
	err    error

	gotName string
	gotArgs []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.gotName = name
	f.gotArgs = args
	return f.stdout, f.stderr, f.err
}

func TestExecEngine_Convert(t *testing.T) {
	r := &fakeRunner{stdout: []byte("# Title\n\nbody")}
	e := NewExecEngineWithRunner("docling", r)

	content, meta, err := e.Convert(context.Background(), "doc.pdf", []byte("%PDF"), FormatMarkdown, Options{IncludeImages: true, IncludeTables: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "# Title\n\nbody" {
		t.Errorf("unexpected content: %q", content)
	}
	if meta["conversion_status"] != "success" {
		t.Errorf("expected success status, got %v", meta["conversion_status"])
	}
	if r.gotName != "docling" {
		t.Errorf("expected docling, got %s", r.gotName)
	}
	if len(r.gotArgs) == 0 || r.gotArgs[0] != "--to" || r.gotArgs[1] != "markdown" {
		t.Errorf("unexpected args: %v", r.gotArgs)
	}
	// Input must be staged with the original extension.
	if !strings.HasSuffix(r.gotArgs[len(r.gotArgs)-1], ".pdf") {
		t.Errorf("expected staged .pdf file, got %s", r.gotArgs[len(r.gotArgs)-1])
	}
}

func TestExecEngine_ConvertFailure(t *testing.T) {
	r := &fakeRunner{stderr: []byte("unsupported document\n"), err: errors.New("exit status 1")}
	e := NewExecEngineWithRunner("docling", r)

	_, _, err := e.Convert(context.Background(), "doc.pdf", nil, FormatHTML, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unsupported document") {
		t.Errorf("expected stderr in error, got: %v", err)
	}
}
