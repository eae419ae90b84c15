package util

import (
	"embed"
	"encoding/base32"
	"net/http"
	"strings"

	"github.com/replicate/go/httpclient"
	"github.com/replicate/go/must"
	"github.com/replicate/go/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Wildcard match in case version.txt is not generated yet
//
//go:embed *
var embedFS embed.FS

func Version() string {
	bs, err := embedFS.ReadFile("version.txt")
	if err != nil {
		return "0.0.0+unknown"
	}
	return strings.TrimSpace(string(bs))
}

var idEncoding = base32.NewEncoding("0123456789abcdefghjkmnpqrstvwxyz").WithPadding(base32.NoPadding)

// RequestID returns a base32 encoded v7 UUID with its bytes shuffled so that
// IDs issued close together do not share a prefix.
func RequestID() string {
	u := must.Get(uuid.NewV7())
	shuffle := make([]byte, uuid.Size)
	for i := 0; i < 4; i++ {
		shuffle[i], shuffle[i+4], shuffle[i+8], shuffle[i+12] = u[i+12], u[i+4], u[i], u[i+8]
	}
	return idEncoding.EncodeToString(shuffle)
}

// HTTPClient returns a client whose requests are traced.
func HTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// HTTPClientWithRetry is HTTPClient with the retry policy applied. Only use
// it for idempotent requests.
func HTTPClientWithRetry() *http.Client {
	return httpclient.ApplyRetryPolicy(HTTPClient())
}
