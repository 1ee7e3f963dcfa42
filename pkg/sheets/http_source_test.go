package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSourceLookupFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "lookup", r.URL.Query().Get("action"))
		assert.Equal(t, "user@example.com", r.URL.Query().Get("email"))
		assert.Equal(t, "s3cret", r.URL.Query().Get("token"))
		_, _ = w.Write([]byte(`{"found":true,"data":{"email":"User@Example.com","fullName":"Jane Learner","testType":"IELTS","registrationDate":"2026-02-01","accessStatus":"active"}}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "s3cret", time.Second)
	require.NoError(t, err)

	rec, err := src.Lookup(context.Background(), "  USER@example.com ")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "user@example.com", rec.Email)
	assert.Equal(t, "Jane Learner", rec.FullName)
	assert.True(t, rec.Active())
	require.NotNil(t, rec.RegistrationDate)
	assert.Equal(t, 2026, rec.RegistrationDate.Year())
}

func TestHTTPSourceLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"found":false}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "", time.Second)
	require.NoError(t, err)

	rec, err := src.Lookup(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestHTTPSourceLookupServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "", time.Second)
	require.NoError(t, err)

	_, err = src.Lookup(context.Background(), "user@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestHTTPSourcePushScore(t *testing.T) {
	var got updateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "tok", time.Second)
	require.NoError(t, err)

	require.NoError(t, src.PushScore(context.Background(), "User@Example.com", KindPostTest, 7.5))
	assert.Equal(t, "updateScore", got.Action)
	assert.Equal(t, "user@example.com", got.Email)
	assert.Equal(t, KindPostTest, got.AttemptType)
	assert.Equal(t, 7.5, got.Score)
	assert.Equal(t, "tok", got.Token)
}

func TestHTTPSourcePushScoreRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"row locked"}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "", time.Second)
	require.NoError(t, err)

	err = src.PushScore(context.Background(), "user@example.com", KindPreTest, 6)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row locked")
	assert.NotErrorIs(t, err, ErrPermanent)
}

func TestHTTPSourcePushScoreUnknownEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Email not found"}`))
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, "", time.Second)
	require.NoError(t, err)

	err = src.PushScore(context.Background(), "nobody@example.com", KindPreTest, 6)
	assert.ErrorIs(t, err, ErrEmailNotFound)
	assert.ErrorIs(t, err, ErrPermanent)
}

func TestNewHTTPSourceValidatesEndpoint(t *testing.T) {
	_, err := NewHTTPSource("", "", 0)
	assert.Error(t, err)
	_, err = NewHTTPSource("not a url", "", 0)
	assert.Error(t, err)
}
