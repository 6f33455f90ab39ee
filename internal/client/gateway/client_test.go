package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/shopkeeper/internal/common"
	"github.com/dmitrijs2005/shopkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) { return string(s), nil }

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// unsignedJWT builds an alg=none style token with the given claims, enough
// for the local expiry check which never verifies signatures.
func unsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	enc := func(v any) string {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(b)
	}
	return enc(map[string]string{"alg": "HS256", "typ": "JWT"}) + "." + enc(claims) + "." +
		base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, staticTokens(token), testLogger())
}

func TestRequest_DecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		fmt.Fprint(w, `{"error":false,"message":"ok","data":{"listStory":[{"id":"s1","name":"Chair"}]}}`)
	}, "")

	env, err := c.Request(context.Background(), "/stories", Options{})
	require.NoError(t, err)
	assert.False(t, env.Offline)
	require.Len(t, env.Data.ListStory, 1)
	assert.Equal(t, "s1", env.Data.ListStory[0].ID)
}

func TestRequest_OfflineReadReturnsPlaceholder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request must reach the network while offline")
	}, "")
	c.SetOnline(false)

	env, err := c.Request(context.Background(), "/stories", Options{})
	require.NoError(t, err, "offline reads must not fail")
	assert.True(t, env.Offline)
	assert.False(t, env.Error)
	assert.Equal(t, "offline", env.Message)
	assert.NotNil(t, env.Data.ListStory)
	assert.Empty(t, env.Data.ListStory)
	assert.NotEmpty(t, env.Timestamp)
}

func TestRequest_OfflineWriteFailsImmediately(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request must reach the network while offline")
	}, "")
	c.SetOnline(false)

	_, err := c.Request(context.Background(), "/stories", Options{Method: http.MethodPost})
	assert.ErrorIs(t, err, common.ErrNetworkUnavailable)
}

func TestRequest_GatewayTimeoutBecomesPlaceholder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}, "")

	env, err := c.Request(context.Background(), "/stories", Options{})
	require.NoError(t, err)
	assert.True(t, env.Offline)
}

func TestRequest_ServerErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":true,"message":"\"description\" is required"}`)
	}, "")

	_, err := c.Request(context.Background(), "/stories", Options{Method: http.MethodPost, Body: map[string]string{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"description" is required`)
}

func TestRequest_MalformedBodyFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>not json</html>`)
	}, "")

	_, err := c.Request(context.Background(), "/stories", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestRequest_AttachesBearerToken(t *testing.T) {
	token := unsignedJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"error":false,"message":"ok","data":{}}`)
	}, token)

	_, err := c.Request(context.Background(), "/stories", Options{Auth: true})
	require.NoError(t, err)
}

func TestRequest_ExpiredTokenRejectedLocally(t *testing.T) {
	token := unsignedJWT(t, map[string]any{"exp": time.Now().Add(-time.Hour).Unix()})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("expired token must not reach the server")
	}, token)

	_, err := c.Request(context.Background(), "/stories", Options{Auth: true})
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestRequest_MissingTokenIsUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request without token must not reach the server")
	}, "")

	_, err := c.Request(context.Background(), "/stories", Options{Auth: true})
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestRequest_JSONBodySetsContentType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "x@y.z", body["email"])
		fmt.Fprint(w, `{"error":false,"message":"ok","data":{"token":"tok"}}`)
	}, "")

	token, err := c.Login(context.Background(), "x@y.z", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestCreateStory_SendsMultipart(t *testing.T) {
	token := unsignedJWT(t, map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")
		assert.Equal(t, "Chair", r.FormValue("name"))
		assert.Equal(t, "56.95", r.FormValue("lat"))

		f, _, err := r.FormFile("photo")
		require.NoError(t, err)
		defer f.Close()

		fmt.Fprint(w, `{"error":false,"message":"created","data":{"id":"srv-9"}}`)
	}, token)

	lat := 56.95
	id, err := c.CreateStory(context.Background(), "Chair", "wooden", []byte("jpegdata"), &lat, nil)
	require.NoError(t, err)
	assert.Equal(t, "srv-9", id)
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()

	expired, err := tokenExpired(unsignedJWT(t, map[string]any{"exp": now.Add(-time.Minute).Unix()}), now)
	require.NoError(t, err)
	assert.True(t, expired)

	expired, err = tokenExpired(unsignedJWT(t, map[string]any{"exp": now.Add(time.Minute).Unix()}), now)
	require.NoError(t, err)
	assert.False(t, expired)

	// no exp claim: never expires locally
	expired, err = tokenExpired(unsignedJWT(t, map[string]any{"sub": "u1"}), now)
	require.NoError(t, err)
	assert.False(t, expired)

	_, err = tokenExpired("garbage", now)
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
