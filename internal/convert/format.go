package convert

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format is the closed set of output formats the engine can produce.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
	FormatText     Format = "text"
	FormatDoctags  Format = "doctags"
)

// ParseFormat validates a client-supplied format selector. Unknown values are
// rejected here so they never reach the engine.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatMarkdown, FormatHTML, FormatJSON, FormatText, FormatDoctags:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported output format: %q", s)
}

// FormatOption is one entry of the /formats listing.
type FormatOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func OutputFormats() []FormatOption {
	return []FormatOption{
		{Value: "markdown", Label: "Markdown"},
		{Value: "html", Label: "HTML"},
		{Value: "json", Label: "JSON"},
		{Value: "text", Label: "Plain Text"},
		{Value: "doctags", Label: "DocTags"},
	}
}

func InputFormats() []string {
	return []string{
		"PDF", "DOCX", "PPTX", "XLSX", "HTML", "MD",
		"Images (JPG, PNG, GIF, BMP, TIFF)", "CSV", "XML",
	}
}

var supportedExtensions = map[string]bool{
	".pdf": true, ".docx": true, ".pptx": true, ".xlsx": true,
	".html": true, ".htm": true, ".md": true, ".txt": true,
	".csv": true, ".xml": true, ".jpg": true, ".jpeg": true,
	".png": true, ".gif": true, ".bmp": true, ".tiff": true, ".tif": true,
}

// SupportedFile reports whether the filename's extension is an accepted input type.
func SupportedFile(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}
