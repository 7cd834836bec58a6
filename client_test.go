package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientRejectsBadBaseURL(t *testing.T) {
	_, err := session.NewClient("not a url")
	assert.Error(t, err)

	_, err = session.NewClient("")
	assert.Error(t, err)
}

func TestClientOrigin(t *testing.T) {
	client, err := session.NewClient("https://api.example.com/v1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", client.Origin())
}

func TestAuthHeaderInstallAndClear(t *testing.T) {
	var got []string
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Authorization"))
		writeIdentity(w, "Ana")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	client.SetAuthHeader(testToken)
	_, err = client.FetchIdentity(context.Background())
	require.NoError(t, err)

	client.ClearAuthHeader()
	_, err = client.FetchIdentity(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Bearer "+testToken, got[0])
	assert.Empty(t, got[1])
}

func TestRequestCarriesRequestID(t *testing.T) {
	seen := map[string]bool{}
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		assert.NotEmpty(t, id)
		seen[id] = true
		writeIdentity(w, "Ana")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.FetchIdentity(context.Background())
	require.NoError(t, err)
	_, err = client.FetchIdentity(context.Background())
	require.NoError(t, err)

	// correlation ids are fresh per request
	assert.Len(t, seen, 2)
}

func TestLoginSendsFormEncodedGrant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostFormValue("grant_type"))
		assert.Equal(t, "a@b.com", r.PostFormValue("username"))
		assert.Equal(t, "secret", r.PostFormValue("password"))
		json.NewEncoder(w).Encode(map[string]any{"access_token": testToken})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	token, err := client.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, testToken, token)
}

func TestLoginMissingAccessToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@b.com", "secret")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
}

func TestCredentialErrorCarriesServerDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryAuth, richErr.Category)
	assert.Equal(t, "Invalid credentials", richErr.Message)
	assert.Equal(t, http.StatusUnauthorized, richErr.Metadata["status"])
}

func TestCredentialErrorFallbackMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "invalid credentials", session.ErrorMessage(err, ""))
}

func TestValidationErrorFieldMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeDetail(w, http.StatusUnprocessableEntity, []map[string]any{
			{"loc": []any{"body", "username"}, "msg": "field required", "type": "value_error.missing"},
			{"loc": []any{"body", "password"}, "msg": "field required", "type": "value_error.missing"},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "", "")
	require.Error(t, err)
	assert.True(t, session.IsValidationError(err))

	fields := session.FieldMessages(err)
	assert.Equal(t, map[string]string{
		"username": "field required",
		"password": "field required",
	}, fields)

	// session-level rendering concatenates the field messages
	assert.Equal(t, "password: field required; username: field required", session.ErrorMessage(err, ""))
}

func TestTransportErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := session.NewClient(url)
	require.NoError(t, err)

	_, err = client.FetchIdentity(context.Background())
	require.Error(t, err)
	assert.True(t, session.IsTransportError(err))
	assert.Contains(t, session.ErrorMessage(err, ""), "try again")
}

func TestMalformedSuccessBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/me", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := session.NewClient(srv.URL)
	require.NoError(t, err)

	_, err = client.FetchIdentity(context.Background())
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
}
