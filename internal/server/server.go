package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dcr-tools/dcr/internal/body"
	"github.com/dcr-tools/dcr/internal/config"
	"github.com/dcr-tools/dcr/internal/health"
	"github.com/dcr-tools/dcr/internal/metrics"
	"github.com/dcr-tools/dcr/internal/render"
	"github.com/dcr-tools/dcr/internal/snapshot"
	"github.com/dcr-tools/dcr/internal/util"
	"github.com/dcr-tools/dcr/static"
)

var ErrAssets = errors.New("asset directory unavailable")

var tracer = otel.Tracer("github.com/dcr-tools/dcr/internal/server")

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	msgNotFound         = "Oops, you requested an unknown location.\n"
	msgMethodNotAllowed = "Method not allowed.\n"
	msgIngested         = "data ingested, check the logs."
	msgLoggerInactive   = "logger endpoint is not active"

	dnsTimeout = 5 * time.Second
)

const (
	routeHealth       = "health"
	routeHealthToggle = "health_toggle"
	routeVersion      = "version"
	routeLogger       = "logger"
	routeDNS          = "dns"
	routeMetrics      = "metrics"
	routeOpenAPI      = "openapi"
	routeIntrospect   = "introspect"
	routeStatic       = "static"
	routeNotAllowed   = "not_allowed"
)

type Handler struct {
	cfg      config.Config
	health   *health.State
	metrics  *metrics.Metrics
	renderer *render.Renderer
	static   fasthttp.RequestHandler
	promhttp fasthttp.RequestHandler
	openapi  []byte
	version  string
	hostname string
	environ  func() []string
	resolver *net.Resolver
	logger   *zap.Logger
	ingest   *zap.Logger
}

// NewHandler loads templates, static files and the API description. Any
// failure here is a startup error.
func NewHandler(cfg config.Config, hs *health.State, m *metrics.Metrics, logger *zap.Logger) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	templates := static.Templates()
	if cfg.TemplateDir != "" {
		dir, err := openDir(cfg.TemplateDir)
		if err != nil {
			return nil, err
		}
		templates = dir
	}
	renderer, err := render.New(templates)
	if err != nil {
		return nil, err
	}

	openapi, err := loadOpenAPI(cfg.BasePath)
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	h := &Handler{
		cfg:      cfg,
		health:   hs,
		metrics:  m,
		renderer: renderer,
		promhttp: m.Handler(),
		openapi:  openapi,
		version:  util.Version(),
		hostname: hostname,
		environ:  os.Environ,
		resolver: net.DefaultResolver,
		logger:   logger.Named("server"),
		ingest:   logger.Named("ingest"),
	}

	files := &fasthttp.FS{
		IndexNames:   []string{"index.html"},
		PathNotFound: h.NotFound,
	}
	if cfg.StaticDir != "" {
		if _, err := openDir(cfg.StaticDir); err != nil {
			return nil, err
		}
		files.Root = cfg.StaticDir
	} else {
		files.FS = static.Files()
		files.AllowEmptyRoot = true
	}
	h.static = files.NewRequestHandler()

	return h, nil
}

func openDir(dir string) (fs.FS, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAssets, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrAssets, dir)
	}
	return os.DirFS(dir), nil
}

// Serve dispatches a request to exactly one handler.
func (h *Handler) Serve(ctx *fasthttp.RequestCtx) {
	rest, ok := h.underBase(string(ctx.Path()))
	if !ok {
		if ctx.IsGet() {
			h.handle(ctx, routeStatic, h.static)
		} else {
			h.handle(ctx, routeNotAllowed, h.MethodNotAllowed)
		}
		return
	}

	mutating := ctx.IsPut() || ctx.IsPost()
	switch {
	case rest == "/health" && ctx.IsGet():
		h.handle(ctx, routeHealth, h.Health)
	case rest == "/health" && mutating:
		h.handle(ctx, routeHealthToggle, h.HealthToggle)
	case rest == "/version" && ctx.IsGet():
		h.handle(ctx, routeVersion, h.Version)
	case rest == "/logger" && mutating:
		h.handle(ctx, routeLogger, h.Logger)
	case rest == "/metrics" && ctx.IsGet():
		h.handle(ctx, routeMetrics, h.promhttp)
	case rest == "/openapi.json" && ctx.IsGet():
		h.handle(ctx, routeOpenAPI, h.OpenAPI)
	case strings.HasPrefix(rest, "/dns/") && ctx.IsGet() && validHost(rest[len("/dns/"):]):
		host := rest[len("/dns/"):]
		h.handle(ctx, routeDNS, func(ctx *fasthttp.RequestCtx) {
			h.DNS(ctx, host)
		})
	default:
		h.handle(ctx, routeIntrospect, h.Introspect)
	}
}

func (h *Handler) underBase(path string) (string, bool) {
	base := h.cfg.BasePath
	switch {
	case base == "":
		return path, true
	case path == base:
		return "", true
	case strings.HasPrefix(path, base+"/"):
		return path[len(base):], true
	}
	return "", false
}

func validHost(host string) bool {
	return host != "" && !strings.Contains(host, "/")
}

// handle runs fn inside a span and records the outcome in the access log
// and the request counter.
func (h *Handler) handle(ctx *fasthttp.RequestCtx, route string, fn fasthttp.RequestHandler) {
	_, span := tracer.Start(ctx, "dcr."+route)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", string(ctx.Method())),
		attribute.String("url.path", string(ctx.Path())),
		attribute.String("dcr.route", route),
	)

	fn(ctx)

	status := ctx.Response.StatusCode()
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= fasthttp.StatusInternalServerError {
		span.SetStatus(codes.Error, fasthttp.StatusMessage(status))
	}
	h.metrics.ObserveRequest(route, status)

	log := h.logger.Sugar()
	log.Infow(fmt.Sprintf("%s %s %s - %d %s",
		ctx.Request.Header.Protocol(), ctx.Method(), ctx.RequestURI(), status, fasthttp.StatusMessage(status)),
		"route", route,
		"remote_addr", ctx.RemoteAddr().String(),
	)
}

func (h *Handler) Health(ctx *fasthttp.RequestCtx) {
	if h.health.Healthy() {
		writeText(ctx, fasthttp.StatusOK, "OK")
	} else {
		writeText(ctx, fasthttp.StatusServiceUnavailable, "KO")
	}
}

func (h *Handler) HealthToggle(ctx *fasthttp.RequestCtx) {
	healthy := h.health.Toggle()
	h.metrics.ObserveToggle()
	writeText(ctx, fasthttp.StatusOK, fmt.Sprintf("healthcheck toggled to %t state", healthy))
}

func (h *Handler) Version(ctx *fasthttp.RequestCtx) {
	writeText(ctx, fasthttp.StatusOK, h.version+h.cfg.Stamp)
}

// Logger writes the body to the ingest log. Undecodable bodies are logged
// as body.Sentinel and still acknowledged.
func (h *Handler) Logger(ctx *fasthttp.RequestCtx) {
	if !h.cfg.Logger {
		writeText(ctx, fasthttp.StatusNotFound, msgLoggerInactive)
		return
	}
	payload, err := body.ReadAll(bodyStream(ctx), int64(ctx.Request.Header.ContentLength()), h.cfg.MaxBodySize)
	if err != nil {
		h.bodyError(ctx, err)
		return
	}
	text := body.Decode(payload)
	h.ingest.Sugar().Infow(text.Value, "body_state", text.State.String(), "bytes", len(payload))
	h.metrics.ObserveIngest(len(payload))
	writeText(ctx, fasthttp.StatusOK, msgIngested)
}

func (h *Handler) Introspect(ctx *fasthttp.RequestCtx) {
	log := h.logger.Sugar()
	req := requestOf(ctx)
	env := snapshot.Environ(h.environ())

	payload, err := body.ReadAll(bodyStream(ctx), int64(ctx.Request.Header.ContentLength()), h.cfg.MaxBodySize)
	if err != nil {
		h.bodyError(ctx, err)
		return
	}

	snap := snapshot.New(util.RequestID(), req, payload, env)
	format := render.Negotiate(string(ctx.QueryArgs().Peek("format")), string(ctx.Request.Header.Peek(fasthttp.HeaderAccept)))
	doc := render.Document{
		Program: render.Program{
			Version:  h.version + h.cfg.Stamp,
			Hostname: h.hostname,
			Healthy:  h.health.Healthy(),
		},
		Request: snap,
	}
	bs, err := h.renderer.Render(format, doc)
	if err != nil {
		log.Errorw("failed to render introspection page", "request_id", snap.RequestID, "format", format.String(), "error", err)
		writeText(ctx, fasthttp.StatusInternalServerError, "failed to render page")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(format.ContentType())
	ctx.SetBody(bs)
}

// DNS resolves host with the system resolver, so /etc/hosts applies.
func (h *Handler) DNS(ctx *fasthttp.RequestCtx, host string) {
	lookupCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := h.resolver.LookupIPAddr(lookupCtx, host)
	if err != nil {
		writeText(ctx, fasthttp.StatusOK, html.EscapeString(fmt.Sprintf("%q => error %v", host, err)))
		return
	}
	var b strings.Builder
	for _, addr := range addrs {
		b.WriteString("<br>")
		b.WriteString(html.EscapeString(addr.IP.String()))
	}
	writeText(ctx, fasthttp.StatusOK, b.String())
}

func (h *Handler) OpenAPI(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(contentTypeJSON)
	ctx.SetBody(h.openapi)
}

func (h *Handler) NotFound(ctx *fasthttp.RequestCtx) {
	writeText(ctx, fasthttp.StatusNotFound, msgNotFound)
}

func (h *Handler) MethodNotAllowed(ctx *fasthttp.RequestCtx) {
	writeText(ctx, fasthttp.StatusMethodNotAllowed, msgMethodNotAllowed)
}

func (h *Handler) bodyError(ctx *fasthttp.RequestCtx, err error) {
	log := h.logger.Sugar()
	h.metrics.ObserveBodyError(err)
	// The rest of the body is still on the wire.
	ctx.SetConnectionClose()
	if errors.Is(err, body.ErrPayloadTooLarge) {
		log.Warnw("rejected request body", "error", err)
		writeText(ctx, fasthttp.StatusRequestEntityTooLarge, err.Error())
		return
	}
	log.Errorw("failed to read request body", "error", err)
	writeText(ctx, fasthttp.StatusInternalServerError, err.Error())
}

// requestOf copies the request line and headers. Headers are taken from the
// raw header block so arrival order and duplicates survive.
func requestOf(ctx *fasthttp.RequestCtx) snapshot.Request {
	req := snapshot.Request{
		Protocol: string(ctx.Request.Header.Protocol()),
		Method:   string(ctx.Method()),
		URI:      string(ctx.RequestURI()),
	}
	ctx.Request.Header.VisitAllInOrder(func(key, value []byte) {
		req.Headers = append(req.Headers, snapshot.Header{Name: string(key), Value: string(value)})
	})
	return req
}

func bodyStream(ctx *fasthttp.RequestCtx) io.Reader {
	if r := ctx.RequestBodyStream(); r != nil {
		return r
	}
	return bytes.NewReader(ctx.Request.Body())
}

func writeText(ctx *fasthttp.RequestCtx, status int, text string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType(contentTypeHTML)
	ctx.SetBodyString(text)
}
