package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queuehive/internal/apiclient"
	"queuehive/internal/cli"
	"queuehive/internal/config"
	"queuehive/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func testApp(t *testing.T, handler http.HandlerFunc) (*app, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var out bytes.Buffer
	previous := stdout
	stdout = &out
	t.Cleanup(func() { stdout = previous })

	a := newApp(config.Config{
		APIBaseURL:       server.URL + "/api",
		WebsocketURL:     server.URL + "/ws",
		RequestTimeout:   5 * time.Second,
		PollInterval:     time.Hour,
		FailureThreshold: 3,
		SessionBackend:   "memory",
	})
	t.Cleanup(a.close)
	return a, &out
}

func execute(a *app, args ...string) error {
	return rootCommand(a).Execute(context.Background(), args)
}

func userToken(t *testing.T) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ada@example.com",
		"role": "USER",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "plain", err: errors.New("boom"), want: "boom"},
		{name: "api", err: &apiclient.Error{StatusCode: 400, Message: "Invalid input: email - must be valid"}, want: "Invalid input: email - must be valid"},
		{name: "validation", err: apiclient.ValidationErrors{{Field: "email", Message: "Email is invalid."}}, want: apiclient.ValidationErrors{{Field: "email", Message: "Email is invalid."}}.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.err))
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	a, _ := testApp(t, func(w http.ResponseWriter, r *http.Request) {})
	err := execute(a, "frobnicate")
	require.Error(t, err)
	assert.True(t, cli.IsUsage(err))
}

func TestTokensActivePrintsTable(t *testing.T) {
	a, out := testApp(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tokens/service/3/active" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 101, "tokenNumber": 101, "serviceId": 3, "userId": 7, "status": "CALLING"},
			{"id": 102, "tokenNumber": 102, "serviceId": 3, "userId": 8, "status": "PENDING"},
		})
	})

	require.NoError(t, execute(a, "tokens", "active", "3"))
	assert.Contains(t, out.String(), "STATUS")
	assert.Contains(t, out.String(), "CALLING")
	assert.Contains(t, out.String(), "102")
}

func TestLoginJoinAndWhoami(t *testing.T) {
	credential := userToken(t)
	token := map[string]any{"id": 101, "tokenNumber": 42, "serviceId": 3, "userId": 7, "status": "PENDING"}
	a, out := testApp(t, func(w http.ResponseWriter, r *http.Request) {
		authed := r.Header.Get("Authorization") == "Bearer "+credential
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/auth/login":
			writeJSON(w, http.StatusOK, map[string]any{"token": credential, "role": "USER", "userId": 7})
		case !authed:
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		case r.URL.Path == "/api/users/me":
			writeJSON(w, http.StatusOK, map[string]any{"id": 7, "fullName": "Ada Lovelace", "email": "ada@example.com", "role": "USER"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/tokens":
			writeJSON(w, http.StatusOK, token)
		case r.URL.Path == "/api/tokens/101":
			writeJSON(w, http.StatusOK, token)
		case r.URL.Path == "/api/tokens/101/position":
			writeJSON(w, http.StatusOK, map[string]int{"position": 5})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
		}
	})

	require.NoError(t, execute(a, "login", "--email", "ada@example.com", "--password", "secret123"))
	assert.Contains(t, out.String(), "Logged in as Ada Lovelace (USER)")

	out.Reset()
	require.NoError(t, execute(a, "whoami"))
	assert.Contains(t, out.String(), "user 7  role USER")

	out.Reset()
	require.NoError(t, execute(a, "tokens", "join", "3"))
	assert.Contains(t, out.String(), "Token 42 | PENDING | position 5")

	out.Reset()
	require.NoError(t, execute(a, "logout"))
	err := execute(a, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	a, _ := testApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	err := execute(a, "tokens", "set-status", "101", "DONE")
	require.Error(t, err)
	assert.True(t, cli.IsUsage(err))
}

func TestRoleGuardedCommands(t *testing.T) {
	a, _ := testApp(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	ctx := context.Background()

	err := execute(a, "admin", "users")
	require.ErrorIs(t, err, errNotLoggedIn)

	_, err = a.sessions.Login(ctx, models.LoginResponse{Token: userToken(t), Role: models.RoleUser, UserID: 7}, "Ada Lovelace")
	require.NoError(t, err)

	cases := [][]string{
		{"admin", "users"},
		{"admin", "overview"},
		{"board", "3"},
	}
	for _, args := range cases {
		err := execute(a, args...)
		require.ErrorIs(t, err, errForbidden, "%v", args)
		assert.Contains(t, err.Error(), "your home is /user/dashboard")
	}
}
