// Package render turns snapshots into HTML, JSON or YAML documents.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dcr-tools/dcr/internal/snapshot"
)

var ErrRender = errors.New("failed to render page")

const IndexTemplate = "index.html"

type Format int

const (
	FormatHTML Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "html"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json; charset=utf-8"
	case FormatYAML:
		return "application/yaml; charset=utf-8"
	default:
		return "text/html; charset=utf-8"
	}
}

// Negotiate picks a format from an explicit ?format= value, then from the
// Accept header. HTML is the fallback.
func Negotiate(format, accept string) Format {
	switch strings.ToLower(format) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "html":
		return FormatHTML
	}
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case "text/html":
			return FormatHTML
		case "application/json":
			return FormatJSON
		case "application/yaml", "application/x-yaml", "text/yaml":
			return FormatYAML
		}
	}
	return FormatHTML
}

// Program describes the running process.
type Program struct {
	Version  string `json:"version" yaml:"version"`
	Hostname string `json:"hostname" yaml:"hostname"`
	Healthy  bool   `json:"healthy" yaml:"healthy"`
}

// Document is what gets rendered for one introspection request.
type Document struct {
	Program Program            `json:"program" yaml:"program"`
	Request *snapshot.Snapshot `json:"request" yaml:"request"`
}

type Renderer struct {
	tmpl *template.Template
}

// New parses every *.html file in fsys. IndexTemplate must be among them.
func New(fsys fs.FS) (*Renderer, error) {
	tmpl, err := template.ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if tmpl.Lookup(IndexTemplate) == nil {
		return nil, fmt.Errorf("template %s not found", IndexTemplate)
	}
	return &Renderer{tmpl: tmpl}, nil
}

// Render renders doc fully before returning so a failure never leaves a
// partial page behind.
func (r *Renderer) Render(f Format, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err = enc.Encode(doc); err == nil {
			err = enc.Close()
		}
	default:
		err = r.tmpl.ExecuteTemplate(&buf, IndexTemplate, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	return buf.Bytes(), nil
}
