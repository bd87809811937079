package runner_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/capture/internal/testutils"
	"github.com/aretw0/capture/pkg/domain"
	"github.com/aretw0/capture/pkg/ports"
	"github.com/aretw0/capture/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const runID = "0badc0de"

// MockLauncher records launch requests.
type MockLauncher struct {
	mock.Mock
}

func (m *MockLauncher) Launch(ctx context.Context, id string) (ports.Session, error) {
	args := m.Called(ctx, id)
	if s := args.Get(0); s != nil {
		return s.(ports.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func testConfig(t *testing.T, sessions ...string) runner.Config {
	return runner.Config{
		Run:      domain.RunContext{RunID: runID, OutputRoot: testutils.OutputRoot(t)},
		Host:     "127.0.0.1",
		Port:     0,
		Target:   "http://app.test:4200/tests?hidepassed",
		Filter:   "visual",
		Sessions: sessions,
	}
}

type result struct {
	status domain.Status
	err    error
}

func start(t *testing.T, ctx context.Context, r *runner.Runner) (string, <-chan result) {
	t.Helper()
	done := make(chan result, 1)
	go func() {
		st, err := r.Run(ctx)
		done <- result{st, err}
	}()

	select {
	case u := <-r.Ready():
		return u, done
	case res := <-done:
		t.Fatalf("run ended before ready: %v", res.err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner never became ready")
	}
	return "", nil
}

func wait(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
	return result{}
}

func postForm(t *testing.T, endpoint string, form url.Values) int {
	t.Helper()
	resp, err := http.PostForm(endpoint, form)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRunner_FullRun(t *testing.T) {
	cfg := testConfig(t, "A", "B")
	launcher := &testutils.FakeLauncher{Frame: []byte("frame")}
	r, err := runner.New(cfg, launcher)
	require.NoError(t, err)

	server, done := start(t, context.Background(), r)
	assert.True(t, strings.HasPrefix(server, "http://127.0.0.1:"))

	img := base64.StdEncoding.EncodeToString([]byte("X"))
	assert.Equal(t, http.StatusNoContent, postForm(t, server+"screenshot",
		url.Values{domain.FieldClientID: {"A"}, domain.FieldModule: {"home"}, domain.FieldImage: {img}}))
	assert.Equal(t, http.StatusConflict, postForm(t, server+"screenshot",
		url.Values{domain.FieldClientID: {"A"}, domain.FieldModule: {"home"}, domain.FieldImage: {img}}))
	assert.Equal(t, http.StatusNoContent, postForm(t, server+"screenshot",
		url.Values{domain.FieldClientID: {"B"}, domain.FieldModule: {"home"}, domain.FieldImage: {img}}))

	assert.Equal(t, http.StatusNoContent, postForm(t, server+"done", url.Values{domain.FieldClientID: {"A"}}))
	select {
	case <-done:
		t.Fatal("run finished while B was still active")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, http.StatusNoContent, postForm(t, server+"done", url.Values{domain.FieldClientID: {"B"}}))

	res := wait(t, done)
	require.NoError(t, res.err)
	assert.True(t, res.status.Complete)
	assert.Equal(t, 1, res.status.Sessions["A"].Stored)
	assert.Equal(t, 1, res.status.Sessions["A"].Duplicates)

	root := filepath.Join(cfg.Run.OutputRoot, runID)
	assert.Equal(t, []string{"home1.png"}, testutils.ListFiles(t, filepath.Join(root, "A")))
	assert.Equal(t, []string{"home2.png"}, testutils.ListFiles(t, filepath.Join(root, "B")))

	for _, id := range []string{"A", "B"} {
		s := launcher.Session(id)
		require.NotNil(t, s)
		assert.Equal(t, 1, s.Closes())

		visited := s.Visited()
		require.Len(t, visited, 1)
		u, err := url.Parse(visited[0])
		require.NoError(t, err)
		assert.Equal(t, "app.test:4200", u.Host)
		assert.Equal(t, server, u.Query().Get(domain.FieldServerURL))
		assert.Equal(t, id, u.Query().Get(domain.FieldClientID))
	}

	// The server is gone.
	_, err = http.Get(server)
	assert.Error(t, err)
}

func TestRunner_ListenFailureNavigatesNothing(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t, "A")
	cfg.Port = busy.Addr().(*net.TCPAddr).Port

	launcher := new(MockLauncher)
	r, err := runner.New(cfg, launcher)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	var listenErr *domain.ListenError
	require.ErrorAs(t, err, &listenErr)
	assert.Contains(t, err.Error(), "It is either in use or you do not have permission")
	assert.Contains(t, listenErr.URL, "127.0.0.1")

	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestRunner_LaunchFailure(t *testing.T) {
	cfg := testConfig(t, "A", "B")

	ok := testutils.NewFakeSession("A", nil)
	launcher := new(MockLauncher)
	launcher.On("Launch", mock.Anything, "A").Return(ok, nil)
	launcher.On("Launch", mock.Anything, "B").Return(nil, errors.New("no browser"))

	r, err := runner.New(cfg, launcher)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch session B")
	assert.Equal(t, 1, ok.Closes(), "launched sessions are closed when the run aborts")
	launcher.AssertExpectations(t)
}

func TestRunner_NavigationFailure(t *testing.T) {
	cfg := testConfig(t, "A")
	broken := testutils.NewFakeSession("A", nil)
	broken.NavErr = errors.New("net::ERR_CONNECTION_REFUSED")

	r, err := runner.New(cfg, ports.LauncherFunc(func(ctx context.Context, id string) (ports.Session, error) {
		return broken, nil
	}))
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "navigate session A")
	assert.Equal(t, 1, broken.Closes())
}

func TestRunner_Cancel(t *testing.T) {
	cfg := testConfig(t, "A")
	launcher := &testutils.FakeLauncher{}
	r, err := runner.New(cfg, launcher)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, done := start(t, ctx, r)
	cancel()

	res := wait(t, done)
	assert.ErrorIs(t, res.err, context.Canceled)
	assert.False(t, res.status.Complete)
	assert.Equal(t, 1, launcher.Session("A").Closes())
}

func TestRunner_RemoteSessions(t *testing.T) {
	cfg := testConfig(t, "phone")
	cfg.Target = ""
	launcher := &testutils.FakeLauncher{}
	r, err := runner.New(cfg, launcher)
	require.NoError(t, err)

	server, done := start(t, context.Background(), r)

	resp, err := http.Get(server)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, http.StatusNoContent, postForm(t, server+"done", url.Values{domain.FieldClientID: {"phone"}}))
	res := wait(t, done)
	require.NoError(t, res.err)
	assert.Empty(t, launcher.Session("phone").Visited())
}

func TestNew_Validation(t *testing.T) {
	_, err := runner.New(testConfig(t, "A"), nil)
	assert.Error(t, err)

	_, err = runner.New(testConfig(t), &testutils.FakeLauncher{})
	assert.Error(t, err)

	cfg := testConfig(t, "A")
	cfg.Run.RunID = "../x"
	_, err = runner.New(cfg, &testutils.FakeLauncher{})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestNavigationURL(t *testing.T) {
	got, err := runner.NavigationURL("http://localhost:4200/tests?hidepassed", "http://localhost:4300/", "firefox", "visual")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/tests", u.Path)

	q := u.Query()
	assert.Equal(t, "true", q.Get("nojshint"))
	assert.Equal(t, "visual", q.Get(domain.FieldFilter))
	assert.Equal(t, "http://localhost:4300/", q.Get(domain.FieldServerURL))
	assert.Equal(t, "firefox", q.Get(domain.FieldClientID))
	assert.True(t, q.Has("hidepassed"), "existing parameters are preserved")

	got, err = runner.NavigationURL("http://localhost:4200/tests", "http://localhost:4300/", "a", "")
	require.NoError(t, err)
	assert.NotContains(t, got, domain.FieldFilter+"=")

	_, err = runner.NavigationURL("not a url", "http://localhost:4300/", "a", "")
	assert.Error(t, err)
}
