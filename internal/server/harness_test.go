package server

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dcr-tools/dcr/internal/config"
	"github.com/dcr-tools/dcr/internal/health"
	"github.com/dcr-tools/dcr/internal/loggingtest"
	"github.com/dcr-tools/dcr/internal/metrics"
)

// This file implements the harness for the handler tests: a real fasthttp
// server on an in-memory listener, with observed logs.

var testEnviron = []string{"HOME=/root", "DCR_TEST=1", "PATH=/bin"}

type testHarness struct {
	t       *testing.T
	handler *Handler
	health  *health.State
	logs    *observer.ObservedLogs
	ln      *fasthttputil.InmemoryListener
	client  *fasthttp.Client
}

func testConfig() config.Config {
	return config.Config{
		Host:        "127.0.0.1",
		BasePath:    "/dcr",
		Healthcheck: true,
		Logger:      true,
		MaxBodySize: 1 << 20,
	}
}

func newTestHarness(t *testing.T, opts ...func(*config.Config)) *testHarness {
	t.Helper()
	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	logger, logs := loggingtest.NewObservedLogger(t)
	hs := health.New(cfg.Healthcheck, logger)
	h, err := NewHandler(cfg, hs, metrics.New(hs.Healthy), logger)
	require.NoError(t, err)
	h.environ = func() []string { return testEnviron }

	ln := fasthttputil.NewInmemoryListener()
	srv := NewServer(cfg, h, logger)
	go func() {
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return &testHarness{
		t:       t,
		handler: h,
		health:  hs,
		logs:    logs,
		ln:      ln,
		client: &fasthttp.Client{
			Dial: func(addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
}

type testResponse struct {
	Status      int
	ContentType string
	Body        string
}

func (th *testHarness) do(method, path string, body []byte, headers ...string) testResponse {
	th.t.Helper()
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://dcr.test" + path)
	req.Header.SetMethod(method)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}
	if body != nil {
		req.SetBody(body)
	}
	require.NoError(th.t, th.client.Do(req, resp))
	return testResponse{
		Status:      resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        string(resp.Body()),
	}
}

// raw writes request verbatim, bypassing client-side header handling.
func (th *testHarness) raw(request string) testResponse {
	th.t.Helper()
	conn, err := th.ln.Dial()
	require.NoError(th.t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(request))
	require.NoError(th.t, err)

	var resp fasthttp.Response
	require.NoError(th.t, resp.Read(bufio.NewReader(conn)))
	return testResponse{
		Status:      resp.StatusCode(),
		ContentType: string(resp.Header.ContentType()),
		Body:        string(resp.Body()),
	}
}

// ingested returns the messages written by the logger endpoint.
func (th *testHarness) ingested() []string {
	var msgs []string
	for _, e := range th.logs.All() {
		if e.LoggerName == "ingest" {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}
