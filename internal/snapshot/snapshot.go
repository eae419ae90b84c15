// Package snapshot builds the per-request record shown by the introspection
// page.
package snapshot

import (
	"cmp"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/dcr-tools/dcr/internal/body"
)

type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

type EnvVar struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Request is the non-body part of a request as read from the transport.
// Headers are in arrival order, duplicates included.
type Request struct {
	Protocol string
	Method   string
	URI      string
	Headers  []Header
}

// Snapshot is never modified after New returns it.
type Snapshot struct {
	RequestID string   `json:"request_id" yaml:"request_id"`
	Protocol  string   `json:"protocol" yaml:"protocol"`
	Method    string   `json:"method" yaml:"method"`
	URI       string   `json:"uri" yaml:"uri"`
	Headers   []Header `json:"headers" yaml:"headers"`
	Body      string   `json:"body" yaml:"body"`
	BodyState string   `json:"body_state" yaml:"body_state"`
	BodySize  int      `json:"body_size" yaml:"body_size"`
	BodyType  string   `json:"body_type,omitempty" yaml:"body_type,omitempty"`
	Env       []EnvVar `json:"env" yaml:"env"`
}

// New assembles a Snapshot from the request line, the finalized body and
// the environment. Headers and env are copied.
func New(id string, req Request, payload []byte, env []EnvVar) *Snapshot {
	text := body.Decode(payload)
	s := &Snapshot{
		RequestID: id,
		Protocol:  req.Protocol,
		Method:    req.Method,
		URI:       req.URI,
		Headers:   slices.Clone(req.Headers),
		Body:      text.Value,
		BodyState: text.State.String(),
		BodySize:  len(payload),
		Env:       slices.Clone(env),
	}
	if s.Headers == nil {
		s.Headers = []Header{}
	}
	if s.Env == nil {
		s.Env = []EnvVar{}
	}
	if len(payload) > 0 {
		s.BodyType = mimetype.Detect(payload).String()
	}
	return s
}

// Environ parses KEY=VALUE pairs as returned by os.Environ. Later entries
// win over earlier ones with the same name and the result is sorted by name.
func Environ(kv []string) []EnvVar {
	m := make(map[string]string, len(kv))
	for _, e := range kv {
		name, value, _ := strings.Cut(e, "=")
		if name == "" {
			continue
		}
		m[name] = value
	}
	vars := make([]EnvVar, 0, len(m))
	for name, value := range m {
		vars = append(vars, EnvVar{Name: name, Value: value})
	}
	slices.SortFunc(vars, func(a, b EnvVar) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return vars
}
