package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/capture/internal/testutils"
	"github.com/aretw0/capture/pkg/adapters/file"
	"github.com/aretw0/capture/pkg/adapters/memory"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRunID = "deadbeef"

type fixture struct {
	root     string
	svc      *ingest.Service
	handler  http.Handler
	sessions map[string]*testutils.FakeSession
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	root := testutils.OutputRoot(t)
	svc, err := ingest.New(
		domain.RunContext{RunID: testRunID, OutputRoot: root},
		memory.NewCounter(),
		ingest.WithWriter(file.NewWriter(file.WithoutSync())),
	)
	require.NoError(t, err)

	f := &fixture{root: root, svc: svc, sessions: map[string]*testutils.FakeSession{}}
	for _, id := range []string{"chrome", "firefox"} {
		s := testutils.NewFakeSession(id, []byte("frame-"+id))
		require.NoError(t, svc.Register(id, s))
		f.sessions[id] = s
	}
	f.handler = NewHandler(svc, opts...)
	return f
}

func (f *fixture) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) files(session string) []string {
	entries, err := os.ReadDir(filepath.Join(f.root, testRunID, session))
	if err != nil {
		return nil
	}
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func screenshotForm(session, module string, image []byte) url.Values {
	form := url.Values{domain.FieldClientID: {session}}
	if module != "" {
		form.Set(domain.FieldModule, module)
	}
	if image != nil {
		form.Set(domain.FieldImage, base64.StdEncoding.EncodeToString(image))
	}
	return form
}

func TestGetRoot(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Capture server ready. Sessions prepared: chrome, firefox.", w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPostScreenshot_StoreAndDuplicate(t *testing.T) {
	f := newFixture(t)
	img := []byte("\x89PNG fake")

	w := f.post("/screenshot", screenshotForm("chrome", "login", img))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.post("/screenshot", screenshotForm("chrome", "login", img))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.post("/screenshot", screenshotForm("firefox", "login", img))
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{"login1.png"}, f.files("chrome"))
	assert.Equal(t, []string{"login2.png"}, f.files("firefox"))

	content, err := os.ReadFile(filepath.Join(f.root, testRunID, "chrome", "login1.png"))
	require.NoError(t, err)
	assert.Equal(t, img, content)
}

func TestPostScreenshot_DataURL(t *testing.T) {
	f := newFixture(t)
	img := []byte("data-url-image")

	form := url.Values{
		domain.FieldClientID: {"chrome"},
		domain.FieldImage:    {"data:image/png;base64," + base64.StdEncoding.EncodeToString(img)},
	}
	w := f.post("/screenshot", form)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, []string{domain.DefaultGroup + "1.png"}, f.files("chrome"))
}

func TestPostScreenshot_ServerSideCapture(t *testing.T) {
	f := newFixture(t)

	w := f.post("/screenshot", screenshotForm("chrome", "home", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.sessions["chrome"].Captures())

	content, err := os.ReadFile(filepath.Join(f.root, testRunID, "chrome", "home1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("frame-chrome"), content)
}

func TestPostScreenshot_RawBody(t *testing.T) {
	f := newFixture(t)
	img := []byte("raw-image")

	req := httptest.NewRequest(http.MethodPost, "/screenshot?captureClientID=firefox&module=raw",
		strings.NewReader(base64.StdEncoding.EncodeToString(img)))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"raw1.png"}, f.files("firefox"))
}

func TestPostScreenshot_Multipart(t *testing.T) {
	f := newFixture(t)
	img := []byte("multipart-image")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(domain.FieldClientID, "chrome"))
	require.NoError(t, mw.WriteField(domain.FieldModule, "upload"))
	part, err := mw.CreateFormFile(domain.FieldImage, "shot.png")
	require.NoError(t, err)
	_, err = part.Write(img)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/screenshot", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	content, err := os.ReadFile(filepath.Join(f.root, testRunID, "chrome", "upload1.png"))
	require.NoError(t, err)
	assert.Equal(t, img, content)
}

func TestPostScreenshot_MultipartTextField(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField(domain.FieldClientID, "firefox"))
	require.NoError(t, mw.WriteField(domain.FieldImage, base64.StdEncoding.EncodeToString([]byte("text-image"))))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/screenshot", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	content, err := os.ReadFile(filepath.Join(f.root, testRunID, "firefox", domain.DefaultGroup+"1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("text-image"), content)
}

func TestPostScreenshot_Errors(t *testing.T) {
	f := newFixture(t, WithMaxUploadBytes(1024))

	tests := []struct {
		name string
		form url.Values
		want int
	}{
		{"unknown session", screenshotForm("safari", "home", []byte("x")), http.StatusNotFound},
		{"missing session", url.Values{domain.FieldImage: {"eA=="}}, http.StatusBadRequest},
		{"bad base64", url.Values{domain.FieldClientID: {"chrome"}, domain.FieldImage: {"!!!"}}, http.StatusBadRequest},
		{"bad data url", url.Values{domain.FieldClientID: {"chrome"}, domain.FieldImage: {"data:image/png,abc"}}, http.StatusBadRequest},
		{"too large", screenshotForm("chrome", "big", bytes.Repeat([]byte("a"), 4096)), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.post("/screenshot", tt.form)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	entries, err := os.ReadDir(f.root)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected requests must not write")
}

func TestPostScreenshot_IOFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, testRunID), []byte("blocker"), 0o644))

	w := f.post("/screenshot", screenshotForm("chrome", "home", []byte("x")))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	// The endpoint keeps serving.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostDone(t *testing.T) {
	f := newFixture(t)

	w := f.post("/done", url.Values{domain.FieldClientID: {"chrome"}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.post("/done", url.Values{domain.FieldClientID: {"chrome"}})
	assert.Equal(t, http.StatusNotFound, w.Code, "a completed session is no longer known")

	w = f.post("/done", url.Values{domain.FieldClientID: {"ghost"}})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.post("/done", url.Values{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.post("/screenshot", screenshotForm("chrome", "late", []byte("x")))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.post("/done", url.Values{domain.FieldClientID: {"firefox"}})
	assert.Equal(t, http.StatusNoContent, w.Code)

	select {
	case <-f.svc.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not complete")
	}
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t)
	f.post("/screenshot", screenshotForm("chrome", "home", []byte("x")))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var st domain.Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, testRunID, st.RunID)
	assert.Equal(t, []string{"chrome", "firefox"}, st.Active)
	assert.Equal(t, 1, st.Sessions["chrome"].Stored)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	f.post("/screenshot", screenshotForm("chrome", "home", []byte("x")))
	f.post("/screenshot", screenshotForm("chrome", "home", []byte("x")))

	req := httptest.NewRequest(http.MethodGet, "/sessions/chrome", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got Session
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, Session{Id: "chrome", State: Active, Stored: 1, Duplicates: 1}, got)

	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions/safari", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetInfoAndHealth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "capture-http", info["app"])
	assert.Equal(t, "1.0.0", info["api_version"])
	assert.NotEmpty(t, info["version"])

	req = httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	req = httptest.NewRequest(http.MethodGet, "/swagger", nil)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "url: '/openapi.yaml'")
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "capture_artifacts_total 0")
	})

	f := newFixture(t, WithMetrics(metrics))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "capture_artifacts_total")

	// Not mounted by default.
	f = newFixture(t)
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/screenshot", nil)
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestDecodeImage(t *testing.T) {
	data, err := decodeImage("")
	assert.NoError(t, err)
	assert.Nil(t, data)

	data, err = decodeImage(" aGVsbG8= \n")
	assert.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	// '+' that arrived as a space
	want := []byte{0xfb, 0xef}
	data, err = decodeImage(strings.ReplaceAll(base64.StdEncoding.EncodeToString(want), "+", " "))
	assert.NoError(t, err)
	assert.Equal(t, want, data)

	_, err = decodeImage("data:text/plain,hello")
	assert.ErrorIs(t, err, errBadImage)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrUnknownSession), http.StatusNotFound},
		{domain.ErrDuplicateArtifact, http.StatusConflict},
		{domain.ErrInvalidName, http.StatusBadRequest},
		{domain.ErrEmptyArtifact, http.StatusBadRequest},
		{fmt.Errorf("%w: disk full", domain.ErrIO), http.StatusInternalServerError},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
