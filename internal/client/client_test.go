package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dcr-tools/dcr/internal/config"
	"github.com/dcr-tools/dcr/internal/service"
	"github.com/dcr-tools/dcr/internal/util"
)

func TestHealthStatuses(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		status  int
		healthy bool
		err     bool
	}{
		{status: http.StatusOK, healthy: true},
		{status: http.StatusServiceUnavailable, healthy: false},
		{status: http.StatusNotFound, err: true},
	} {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/dcr/health", r.URL.Path)
				w.WriteHeader(tc.status)
			}))
			defer ts.Close()

			healthy, err := New(ts.URL+"/dcr/", zaptest.NewLogger(t)).Health(context.Background())
			if tc.err {
				assert.ErrorIs(t, err, ErrUnexpectedStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.healthy, healthy)
		})
	}
}

func TestLogSendsBody(t *testing.T) {
	t.Parallel()
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		bs, _ := io.ReadAll(r.Body)
		got = string(bs)
		_, _ = w.Write([]byte("data ingested, check the logs."))
	}))
	defer ts.Close()

	msg, err := New(ts.URL, zaptest.NewLogger(t)).Log(context.Background(), strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "data ingested, check the logs.", msg)
	assert.Equal(t, "hello", got)
}

func TestLogRejected(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte("payload too large\n"))
	}))
	defer ts.Close()

	_, err := New(ts.URL, zaptest.NewLogger(t)).Log(context.Background(), strings.NewReader("big"))
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "413: payload too large")
}

func TestUnreachable(t *testing.T) {
	t.Parallel()
	c := New("http://127.0.0.1:1/dcr", zaptest.NewLogger(t))
	_, err := c.Toggle(context.Background())
	assert.Error(t, err)
}

func TestAgainstServer(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		Host:            "127.0.0.1",
		Port:            util.FindPort(),
		BasePath:        "/dcr",
		Stamp:           "-ctl",
		Healthcheck:     true,
		Logger:          true,
		MaxBodySize:     1 << 20,
		ShutdownTimeout: 5 * time.Second,
	}
	svc := service.New(cfg, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Initialize(ctx))
	done := make(chan error, 1)
	go func() {
		done <- svc.Run(ctx)
	}()
	t.Cleanup(func() {
		svc.Shutdown()
		<-done
	})
	require.Eventually(t, svc.IsRunning, 5*time.Second, 10*time.Millisecond)

	c := New("http://"+cfg.Addr()+"/dcr", zaptest.NewLogger(t))

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, util.Version()+"-ctl", v)

	healthy, err := c.Health(ctx)
	require.NoError(t, err)
	assert.True(t, healthy)

	msg, err := c.Toggle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthcheck toggled to false state", msg)

	healthy, err = c.Health(ctx)
	require.NoError(t, err)
	assert.False(t, healthy)

	msg, err = c.Log(ctx, strings.NewReader("from the client"))
	require.NoError(t, err)
	assert.Equal(t, "data ingested, check the logs.", msg)

	doc, err := c.Inspect(ctx, "probe/path")
	require.NoError(t, err)
	assert.Equal(t, "GET", doc.Request.Method)
	assert.Equal(t, "/dcr/probe/path?format=json", doc.Request.URI)
	assert.False(t, doc.Program.Healthy)
	assert.Equal(t, util.Version()+"-ctl", doc.Program.Version)
}
