package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"xapikit/internal/store"
	"xapikit/xapi"
)

// Config for the development LRS handler.
type Config struct {
	Store    store.Store
	BasePath string
	PageSize int
	MoreTTL  time.Duration
	Auth     AuthConfig
	Logger   zerolog.Logger
	Now      func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"statement is invalid"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type lrs struct {
	store    store.Store
	basePath string
	pageSize int
	moreTTL  time.Duration
	more     *cache.Cache
	schema   *jsonschema.Schema
	validate *validator.Validate
	metrics  *metrics
	auth     AuthConfig
	log      zerolog.Logger
	now      func() time.Time
}

// New returns an HTTP handler serving the xAPI resources under cfg.BasePath.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/xapi"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = xapi.DefaultQueryLimit
	}
	if cfg.MoreTTL <= 0 {
		cfg.MoreTTL = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	schema, err := compileStatementSchema()
	if err != nil {
		return nil, err
	}
	s := &lrs{
		store:    cfg.Store,
		basePath: basePath,
		pageSize: cfg.PageSize,
		moreTTL:  cfg.MoreTTL,
		more:     cache.New(cfg.MoreTTL, 2*cfg.MoreTTL),
		schema:   schema,
		validate: validator.New(),
		metrics:  newMetrics(),
		auth:     cfg.Auth,
		log:      cfg.Logger,
		now:      cfg.Now,
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(s.observe)
	router.Use(s.versionHeader)
	router.Use(s.authenticate)

	hcfg := huma.DefaultConfig("xAPI development LRS", xapi.Version)
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s.registerHealth(group)
	s.registerAbout(group)
	s.registerToken(group)
	s.registerStatements(group)
	s.registerDocuments(group)
	s.registerActivities(group)
	s.registerAgents(group)
	registerOpenAPI(router, api, basePath)
	router.Handle(path.Join(basePath, "metrics"), s.metrics.handler())

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func badRequest(message string, details map[string]any) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", message, details)
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, store.ErrConflict) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	}
	var (
		malformed *xapi.MalformedResponseError
		ifi       *xapi.InvalidIdentifierError
		missing   *xapi.MissingParameterError
		duration  *xapi.InvalidDurationError
		schemaErr *jsonschema.ValidationError
	)
	switch {
	case errors.As(err, &schemaErr):
		return badRequest("statement does not match schema", map[string]any{"error": schemaErr.Error()})
	case errors.As(err, &malformed), errors.As(err, &ifi), errors.As(err, &missing), errors.As(err, &duration),
		errors.Is(err, xapi.ErrNestedSubStatement):
		return badRequest(err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "cannot be voided"):
		return badRequest(msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}

// unversionedRoutes skip the version header check.
var unversionedRoutes = []string{"about", "health", "metrics", "openapi.json", "auth/token"}

// openRoutes skip authentication.
var openRoutes = []string{"about", "health", "metrics", "openapi.json"}

func (s *lrs) routeIn(r *http.Request, routes []string) bool {
	for _, route := range routes {
		if r.URL.Path == path.Join(s.basePath, route) {
			return true
		}
	}
	return false
}

func (s *lrs) versionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(xapi.VersionHeader, xapi.Version)
		if !strings.HasPrefix(r.URL.Path, s.basePath+"/") || s.routeIn(r, unversionedRoutes) {
			next.ServeHTTP(w, r)
			return
		}
		v := strings.TrimSpace(r.Header.Get(xapi.VersionHeader))
		if v == "" {
			respondStatusError(w, badRequest(xapi.VersionHeader+" header is required", nil))
			return
		}
		if !strings.HasPrefix(v, "1.0") {
			respondStatusError(w, badRequest("unsupported xAPI version", map[string]any{"version": v}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *lrs) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		elapsed := s.now().Sub(start)
		s.metrics.observeRequest(r.Method, ww.Status(), elapsed)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Msg("request")
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{Description: "Error"}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["basicAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "basic"}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{Type: "http", Scheme: "bearer", BearerFormat: "JWT"}
	security := []map[string][]string{{"basicAuth": {}}, {"bearerAuth": {}}}
	oas.Security = security
	open := map[string]bool{}
	for _, route := range openRoutes {
		open[path.Join(basePath, route)] = true
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func (s *lrs) registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		current, latest, err := s.store.SchemaVersion(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		status := "ok"
		if current != latest {
			status = "schema_outdated"
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{"status": status, "schema_version": current}}, nil
	})
}

func (s *lrs) registerAbout(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "about",
		Method:      http.MethodGet,
		Path:        "/about",
		Summary:     "Supported xAPI versions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body xapi.About `json:"body"`
	}, error) {
		return &struct {
			Body xapi.About `json:"body"`
		}{Body: xapi.About{Version: []string{xapi.Version}}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

func requestFrom(ctx context.Context) *http.Request {
	req, _ := ctx.Value(requestKey{}).(*http.Request)
	return req
}

func (s *lrs) timestamp() string {
	return xapi.FormatTimestamp(s.now())
}
