package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sauat/cmd/internal/auth/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "explicit localhost", in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v4", in: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{name: "bind all v6", in: "[::]:9090", want: "http://127.0.0.1:9090"},
		{name: "port only", in: ":8080", want: "http://127.0.0.1:8080"},
		{name: "ipv6 host", in: "[2001:db8::1]:9090", want: "http://[2001:db8::1]:9090"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := runtimeBaseURL(tc.in)
			if got != tc.want {
				t.Fatalf("runtimeBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWSBaseURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "http://127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
		{in: "https://sauat.example.kz", want: "wss://sauat.example.kz"},
		{in: "127.0.0.1:8080", want: "ws://127.0.0.1:8080"},
	}

	for _, tc := range cases {
		got := wsBaseURL(tc.in)
		if got != tc.want {
			t.Fatalf("wsBaseURL(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

const (
	testAdminEmail    = "admin@sauat.kz"
	testAdminPassword = "Bastyq-Parol-2026!"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setAuthEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SAUAT_AUTH_ISSUER", "sauat")
	t.Setenv("SAUAT_AUTH_AUDIENCE", "sauat-client")
	t.Setenv("SAUAT_AUTH_SIGNING_KEY", strings.Repeat("k", session.MinSigningKeyBytes))
}

func newTestApp(t *testing.T) *App {
	t.Helper()

	setAuthEnv(t)

	a, err := New(context.Background(), Config{
		RefreshStore:       RefreshStoreMemory,
		CORSAllowedOrigins: []string{"https://learn.example.kz"},
		SeedAdminEmail:     testAdminEmail,
		AdminPassword:      testAdminPassword,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestNew_RequiresSigningKey(t *testing.T) {
	setAuthEnv(t)
	t.Setenv("SAUAT_AUTH_SIGNING_KEY", "short")

	_, err := New(context.Background(), Config{}, discardLogger())
	require.ErrorIs(t, err, session.ErrConfig)
}

func TestNew_RequiresIssuerAndAudience(t *testing.T) {
	for _, key := range []string{"SAUAT_AUTH_ISSUER", "SAUAT_AUTH_AUDIENCE"} {
		t.Run(key, func(t *testing.T) {
			setAuthEnv(t)
			t.Setenv(key, "")

			_, err := New(context.Background(), Config{RefreshStore: RefreshStoreMemory}, discardLogger())
			require.ErrorIs(t, err, session.ErrConfig)
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestApp_SeededAdminLogsIn(t *testing.T) {
	a := newTestApp(t)
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	body, err := json.Marshal(map[string]string{"email": testAdminEmail, "password": testAdminPassword})
	require.NoError(t, err)

	resp, err := ts.Client().Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var env struct {
		Data struct {
			User struct {
				Roles []string `json:"roles"`
			} `json:"userProfileDto"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, []string{"Admin", "Instructor"}, env.Data.User.Roles)

	mresp, err := ts.Client().Get(ts.URL + MetricsPath)
	require.NoError(t, err)
	defer func() { _ = mresp.Body.Close() }()
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `sauat_auth_operations_total{op="login",outcome="success"} 1`)
}

func TestApp_PresenceCountAndCORS(t *testing.T) {
	a := newTestApp(t)
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	a.tracker.Connect("learner-1")

	req, err := http.NewRequest(http.MethodGet, ts.URL+PresenceCountPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://learn.example.kz")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://learn.example.kz", resp.Header.Get("Access-Control-Allow-Origin"))

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.Count)

	req.Header.Set("Origin", "https://elsewhere.example.com")
	denied, err := ts.Client().Do(req)
	require.NoError(t, err)
	_ = denied.Body.Close()
	assert.Equal(t, http.StatusForbidden, denied.StatusCode)
}
