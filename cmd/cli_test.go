package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/sessionpool/internal/adapters/auth"
	"github.com/bnema/sessionpool/internal/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const databasePath = "/fmi/data/vLatest/databases/Contacts"

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", stdout)
}

func TestCredentialsSetRequiresExactlyOneSource(t *testing.T) {
	home := t.TempDir()

	_, _, err := executeCLI(t, home, "credentials", "set")
	require.ErrorIs(t, err, errPasswordSource)

	_, _, err = executeCLI(t, home, "credentials", "set", "--password", "x", "--password-stdin")
	require.ErrorIs(t, err, errPasswordSource)
}

func TestCredentialsSetFromStdinStoresPassword(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLIWithInput(t, home, "hunter2\n", "credentials", "set", "--password-stdin", "--profile", "staging")
	require.NoError(t, err)
	assert.Contains(t, stdout, "stored password for profile staging")

	stored, err := os.ReadFile(filepath.Join(home, ".config", "sessionpool", "secrets", "sessionpool", "staging", "password"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(stored))

	stdout, _, err = executeCLI(t, home, "credentials", "remove", "--profile", "staging")
	require.NoError(t, err)
	assert.Contains(t, stdout, "removed password for profile staging")
	assert.NoFileExists(t, filepath.Join(home, ".config", "sessionpool", "secrets", "sessionpool", "staging", "password"))
}

func TestRequestRequiresServiceConfig(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "request", "GET", "layouts/People/records")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing config service.base_url, service.username")
}

func TestRequestFailsWithoutStoredPassword(t *testing.T) {
	service := newFakeService(t)
	home := t.TempDir()
	require.NoError(t, writeConfigFixture(home, service.URL()))

	_, _, err := executeCLI(t, home, "request", "GET", "layouts/People/records")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load password")
	assert.Zero(t, service.Logins())
}

func TestRequestRunsAndReusesCachedSessions(t *testing.T) {
	service := newFakeService(t)
	home := setupHome(t, service)

	stdout, _, err := executeCLI(t, home, "request", "GET", "layouts/People/records", "--repeat", "3", "--query", "_limit=5", "--json")
	require.NoError(t, err)

	var outcomes []application.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &outcomes))
	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		assert.Equal(t, "0", outcome.Code)
		assert.Equal(t, http.StatusOK, outcome.Status)
		assert.JSONEq(t, `{"data":[{"fieldData":{"name":"Ada"}}]}`, string(outcome.Response))
	}

	logins := service.Logins()
	assert.GreaterOrEqual(t, logins, 1)
	assert.LessOrEqual(t, logins, 2)
	assert.Equal(t, []string{"5", "5", "5"}, service.Limits())

	stdout, _, err = executeCLI(t, home, "sessions", "list", "--json")
	require.NoError(t, err)
	var cached []sessionView
	require.NoError(t, json.Unmarshal([]byte(stdout), &cached))
	assert.Len(t, cached, logins)
	assert.NotContains(t, stdout, "tok-")

	_, _, err = executeCLI(t, home, "request", "GET", "layouts/People/records", "--json")
	require.NoError(t, err)
	assert.Equal(t, logins, service.Logins(), "cached session is reused")
}

func TestRequestLogoutRevokesSessions(t *testing.T) {
	service := newFakeService(t)
	home := setupHome(t, service)

	_, _, err := executeCLI(t, home, "request", "GET", "layouts/People/records", "--logout", "--json")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-1"}, service.Revoked())

	stdout, _, err := executeCLI(t, home, "sessions", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, stdout)
}

func TestRequestReportsServiceErrors(t *testing.T) {
	service := newFakeService(t)
	home := setupHome(t, service)

	stdout, _, err := executeCLI(t, home, "request", "GET", "layouts/Missing/records", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 requests failed")

	var outcomes []application.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "105", outcomes[0].Code)
	assert.Equal(t, "Layout is missing", outcomes[0].Message)
}

func TestRequestReplacesRejectedToken(t *testing.T) {
	service := newFakeService(t, func(f *fakeService) { f.rejectToken = "tok-1" })
	home := setupHome(t, service)

	stdout, _, err := executeCLI(t, home, "request", "GET", "layouts/People/records", "--repeat", "2", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 requests failed")

	var outcomes []application.Outcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &outcomes))
	assert.Equal(t, "952", outcomes[0].Code)
	assert.Equal(t, "0", outcomes[1].Code)
	assert.Equal(t, 2, service.Logins())
}

func TestRequestRendersTableSpinnerAndMetrics(t *testing.T) {
	service := newFakeService(t, func(f *fakeService) { f.delay = 200 * time.Millisecond })
	home := setupHome(t, service)

	stdout, stderr, err := executeCLI(t, home, "request", "get", "layouts/People/records", "--repeat", "2", "--metrics", "--concurrency", "1")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Sending 2 request(s)")
	assert.Contains(t, stdout, "Requests (default)")
	assert.Contains(t, stdout, "requests: 2  ok: 2  failed: 0")
	assert.Contains(t, stdout, `sessionpool_dispatches_total{outcome="success"} 2`)
	assert.Contains(t, stdout, `sessionpool_session_creations_total{outcome="success"} 1`)
	assert.Equal(t, 1, service.Logins())
}

func TestRequestRejectsInvalidFlags(t *testing.T) {
	service := newFakeService(t)
	home := setupHome(t, service)

	testCases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "bad query", args: []string{"--query", "novalue"}, wantErr: `invalid --query "novalue"`},
		{name: "bad header", args: []string{"--header", "=x"}, wantErr: `invalid --header "=x"`},
		{name: "zero repeat", args: []string{"--repeat", "0"}, wantErr: "--repeat must be at least 1"},
		{name: "body not object", args: []string{"--body", "[1,2]"}, wantErr: "want a JSON object"},
		{name: "negative concurrency", args: []string{"--concurrency", "-2"}, wantErr: "invalid config"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"request", "GET", "layouts/People/records"}, tc.args...)
			_, _, err := executeCLI(t, home, args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}

	assert.Zero(t, service.Logins())
}

func TestSessionsClearWithLogout(t *testing.T) {
	service := newFakeService(t)
	home := setupHome(t, service)

	_, _, err := executeCLI(t, home, "request", "GET", "layouts/People/records", "--json")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "sessions", "clear", "--logout")
	require.NoError(t, err)
	assert.Contains(t, stdout, "cleared 1 session(s) for profile default")
	assert.Equal(t, []string{"tok-1"}, service.Revoked())

	stdout, _, err = executeCLI(t, home, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No cached sessions.")
}

func TestBuildDescriptors(t *testing.T) {
	base := "https://fms.example.com" + databasePath

	descriptors, err := buildDescriptors("post", "layouts/People/_find?script=audit", base, requestOptions{
		query:   []string{"_limit=10"},
		headers: []string{"X-Trace=abc"},
		body:    `{"query":[{"name.first":"Ada"}]}`,
		repeat:  2,
	})
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	first := descriptors[0]
	assert.Equal(t, http.MethodPost, first.Method)
	assert.Equal(t, base+"/layouts/People/_find?script=audit", first.URL)
	assert.Equal(t, map[string]string{"_limit": "10"}, first.Query)
	assert.Equal(t, map[string]string{"X-Trace": "abc"}, first.Header)
	assert.Equal(t, map[string]any{"query": []any{map[string]any{"name.first": "Ada"}}}, first.Body)

	first.Query["_limit"] = "mutated"
	assert.Equal(t, "10", descriptors[1].Query["_limit"])
}

func TestResolveURL(t *testing.T) {
	testCases := []struct {
		name   string
		base   string
		target string
		want   string
	}{
		{name: "relative", base: "https://fms.example.com/db", target: "layouts/A/records", want: "https://fms.example.com/db/layouts/A/records"},
		{name: "leading slash stays under base", base: "https://fms.example.com/db/", target: "/layouts/A/records", want: "https://fms.example.com/db/layouts/A/records"},
		{name: "absolute wins", base: "https://fms.example.com/db", target: "http://other.example.com/x", want: "http://other.example.com/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveURL(tc.base, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, "", args...)
}

func executeCLIWithInput(t *testing.T, home, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	// No pass binary: secrets land in the file store under HOME.
	t.Setenv("PATH", t.TempDir())

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(input))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func setupHome(t *testing.T, service *fakeService) string {
	t.Helper()

	home := t.TempDir()
	require.NoError(t, writeConfigFixture(home, service.URL()))

	_, _, err := executeCLI(t, home, "credentials", "set", "--password", "hunter2")
	require.NoError(t, err)

	return home
}

func writeConfigFixture(home, baseURL string) error {
	configDir := filepath.Join(home, ".config", "sessionpool")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return err
	}

	config := fmt.Sprintf(`[service]
base_url = %q
username = "admin"

[scheduler]
concurrency = 2
timeout = "5s"
`, baseURL+databasePath)

	return os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(config), 0o600)
}

// fakeService speaks just enough of the data API for the CLI: login, logout and one layout.
type fakeService struct {
	server      *httptest.Server
	delay       time.Duration
	rejectToken string

	mu      sync.Mutex
	logins  int
	revoked []string
	limits  []string
}

func newFakeService(t *testing.T, configure ...func(*fakeService)) *fakeService {
	t.Helper()

	f := &fakeService{}
	for _, apply := range configure {
		apply(f)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+databasePath+"/sessions", f.login)
	mux.HandleFunc("DELETE "+databasePath+"/sessions/{token}", f.logout)
	mux.HandleFunc("GET "+databasePath+"/layouts/People/records", f.records)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeServiceJSON(w, http.StatusNotFound, `{"messages":[{"code":"105","message":"Layout is missing"}],"response":{}}`)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeService) URL() string {
	return f.server.URL
}

func (f *fakeService) login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok || username != "admin" || password != "hunter2" {
		writeServiceJSON(w, http.StatusUnauthorized, `{"messages":[{"code":"212","message":"Invalid user account and/or password; please try again"}],"response":{}}`)
		return
	}
	_, _ = io.Copy(io.Discard, r.Body)

	f.mu.Lock()
	f.logins++
	token := fmt.Sprintf("tok-%d", f.logins)
	f.mu.Unlock()

	w.Header().Set(auth.HeaderAccessToken, token)
	writeServiceJSON(w, http.StatusOK, `{"response":{"token":"`+token+`"},"messages":[{"code":"0","message":"OK"}]}`)
}

func (f *fakeService) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.revoked = append(f.revoked, r.PathValue("token"))
	f.mu.Unlock()

	writeServiceJSON(w, http.StatusOK, `{"response":{},"messages":[{"code":"0","message":"OK"}]}`)
}

func (f *fakeService) records(w http.ResponseWriter, r *http.Request) {
	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, "Bearer tok-") || (f.rejectToken != "" && authorization == "Bearer "+f.rejectToken) {
		writeServiceJSON(w, http.StatusUnauthorized, `{"messages":[{"code":"952","message":"Invalid FileMaker Data API token (*)"}],"response":{}}`)
		return
	}

	f.mu.Lock()
	if limit := r.URL.Query().Get("_limit"); limit != "" {
		f.limits = append(f.limits, limit)
	}
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	writeServiceJSON(w, http.StatusOK, `{"response":{"data":[{"fieldData":{"name":"Ada"}}]},"messages":[{"code":"0","message":"OK"}]}`)
}

func (f *fakeService) Logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.logins
}

func (f *fakeService) Revoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.revoked...)
}

func (f *fakeService) Limits() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.limits...)
}

func writeServiceJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
