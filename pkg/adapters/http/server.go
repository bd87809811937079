package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/aretw0/capture"
	"github.com/aretw0/capture/api"
	"github.com/aretw0/capture/internal/logging"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

//go:generate go run github.com/oapi-codegen/oapi-codegen/v2/cmd/oapi-codegen@v2.5.1 -package http -generate types,chi-server -o api.gen.go ../../../api/openapi.yaml

// DefaultMaxUploadBytes bounds the body of a screenshot submission.
const DefaultMaxUploadBytes int64 = 32 << 20

var (
	errBadImage = errors.New("malformed image payload")
	errBadForm  = errors.New("malformed form")
)

// Ingestor is the part of the ingestion service the transport drives.
type Ingestor interface {
	Submit(ctx context.Context, sessionID, group string, data []byte) (domain.Receipt, error)
	Complete(ctx context.Context, sessionID string) error
	Status() domain.Status
}

// Server implements the generated ServerInterface on top of the ingestion service.
type Server struct {
	Ingest     Ingestor
	maxUpload  int64
	metrics    http.Handler
	apiVersion string
	logger     *slog.Logger
}

// Ensure Server implements ServerInterface
var _ ServerInterface = (*Server)(nil)

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxUploadBytes overrides DefaultMaxUploadBytes.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithMetrics mounts h (usually promhttp) on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler of the capture endpoint.
func NewHandler(ingest Ingestor, opts ...Option) http.Handler {
	s := &Server{
		Ingest:    ingest,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}

	s.apiVersion = "unknown"
	if doc, err := api.Load(); err != nil {
		s.logger.Error("Failed to load OpenAPI spec", "err", err)
	} else if doc.Info != nil {
		s.apiVersion = doc.Info.Version
	}

	r := chi.NewRouter()

	// Swagger UI
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(api.Spec())
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	handler := HandlerFromMux(s, r)
	return enableCORS(handler)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Capture API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetRoot handles GET /.
func (s *Server) GetRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Capture server ready. Sessions prepared: %s.", strings.Join(s.Ingest.Status().Configured, ", "))
}

// PostScreenshot handles POST /screenshot.
func (s *Server) PostScreenshot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var body PostScreenshotFormdataRequestBody
	image, err := s.readScreenshot(r, &body)
	if err != nil {
		status := statusFor(err)
		http.Error(w, http.StatusText(status), status)
		s.logger.Warn("Screenshot: Invalid request", "err", err)
		return
	}

	sessionID := body.CaptureClientID
	if sessionID == "" {
		http.Error(w, "Missing "+domain.FieldClientID, http.StatusBadRequest)
		return
	}
	group := domain.DefaultGroup
	if body.Module != nil && *body.Module != "" {
		group = *body.Module
	}

	receipt, err := s.Ingest.Submit(r.Context(), sessionID, group, image)
	if err != nil {
		status := statusFor(err)
		http.Error(w, http.StatusText(status), status)
		if status >= http.StatusInternalServerError {
			s.logger.Error("Screenshot failed", "session_id", sessionID, "group", group, "err", err)
		}
		return
	}

	if receipt.Outcome == domain.OutcomeDuplicate {
		http.Error(w, "Duplicate screenshot", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostDone handles POST /done.
func (s *Server) PostDone(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}

	var body PostDoneFormdataRequestBody
	if err := runtime.BindForm(&body, r.Form, nil, nil); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		s.logger.Warn("Done: Invalid request body", "err", err)
		return
	}
	if body.CaptureClientID == "" {
		http.Error(w, "Missing "+domain.FieldClientID, http.StatusBadRequest)
		return
	}

	if err := s.Ingest.Complete(r.Context(), body.CaptureClientID); err != nil {
		status := statusFor(err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSession handles GET /sessions/{sessionId}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	stats, ok := s.Ingest.Status().Sessions[sessionID]
	if !ok {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	resp := Session{
		Id:         sessionID,
		State:      SessionState(stats.State),
		Stored:     stats.Stored,
		Duplicates: stats.Duplicates,
		Failures:   stats.Failures,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Session response encode failed", "err", err)
	}
}

// GetStatus handles GET /status.
func (s *Server) GetStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(mapStatus(s.Ingest.Status())); err != nil {
		s.logger.Error("Status response encode failed", "err", err)
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"app":         "capture-http",
		"version":     strings.TrimSpace(capture.Version),
		"api_version": s.apiVersion,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func mapStatus(st domain.Status) Status {
	resp := Status{
		RunId:      st.RunID,
		OutputRoot: st.OutputRoot,
		Configured: st.Configured,
		Active:     st.Active,
		Complete:   st.Complete,
		Sessions:   make(map[string]SessionStats, len(st.Sessions)),
	}
	if resp.Configured == nil {
		resp.Configured = []string{}
	}
	if resp.Active == nil {
		resp.Active = []string{}
	}
	for id, stats := range st.Sessions {
		resp.Sessions[id] = SessionStats{
			State:      SessionState(stats.State),
			Stored:     stats.Stored,
			Duplicates: stats.Duplicates,
			Failures:   stats.Failures,
		}
	}
	return resp
}

// readScreenshot binds the form fields into body and extracts the submitted
// image. A nil slice with a nil error means the request carried no image and
// the session should capture one itself.
func (s *Server) readScreenshot(r *http.Request, body *PostScreenshotFormdataRequestBody) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var raw []byte
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(s.maxUpload); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		raw = data
		// Query parameters only.
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadForm, err)
		}
	}

	if err := runtime.BindForm(body, r.Form, nil, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", errBadForm, err)
	}

	if r.MultipartForm != nil {
		var upload PostScreenshotMultipartRequestBody
		if err := runtime.BindForm(&upload, nil, r.MultipartForm.File, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadForm, err)
		}
		if upload.Image != nil {
			data, err := upload.Image.Bytes()
			if err != nil {
				return nil, fmt.Errorf("open image part: %w", err)
			}
			return data, nil
		}
	}

	if body.Image != nil {
		return decodeImage(*body.Image)
	}
	return decodeImage(string(raw))
}

// decodeImage accepts plain base64 or a base64 data URL ("data:image/png;base64,...").
func decodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, nil
	}

	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: unsupported data url", errBadImage)
		}
		payload = data
	}

	// Form encoding turns '+' into ' ' when the client forgets to escape it.
	payload = strings.ReplaceAll(payload, " ", "+")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadImage, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", errBadImage, domain.ErrEmptyArtifact)
	}
	return data, nil
}

// statusFor maps ingestion errors to HTTP status codes.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateArtifact):
		return http.StatusConflict
	case errors.Is(err, errBadImage),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrEmptyArtifact):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
