package server

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/dcr-tools/dcr/internal/util"
)

//go:embed openapi.yaml
var openapiSpec []byte

// loadOpenAPI validates the embedded API description and stamps it with
// the running version and base path.
func loadOpenAPI(basePath string) ([]byte, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi document: %w", err)
	}
	server := basePath
	if server == "" {
		server = "/"
	}
	doc.Servers = openapi3.Servers{&openapi3.Server{URL: server}}
	doc.Info.Version = util.Version()
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	bs, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal openapi document: %w", err)
	}
	return bs, nil
}
