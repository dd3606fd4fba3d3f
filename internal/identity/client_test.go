package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_CreateIdentity(t *testing.T) {
	var got createUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"uid-1","email":"a@b.com","email_confirmed_at":"2026-01-02T03:04:05Z","user_metadata":{"full_name":"A B"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "service-key", zap.NewNop())
	ident, err := client.CreateIdentity(context.Background(), "a@b.com", "Tmp#Pass123", Metadata{FullName: "A B", PhoneNumber: "+255"})
	require.NoError(t, err)

	assert.Equal(t, "uid-1", ident.ID)
	assert.True(t, ident.Confirmed)
	assert.Equal(t, "A B", ident.Metadata.FullName)

	assert.Equal(t, "a@b.com", got.Email)
	assert.Equal(t, "Tmp#Pass123", got.Password)
	assert.True(t, got.EmailConfirm)
	assert.Equal(t, "+255", got.UserMetadata.PhoneNumber)
}

func TestClient_CreateIdentity_ProviderError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"A user with this email address has already been registered"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "service-key", zap.NewNop())
	_, err := client.CreateIdentity(context.Background(), "a@b.com", "pw", Metadata{})
	require.Error(t, err)
	assert.Equal(t, "A user with this email address has already been registered", err.Error())
	assert.Equal(t, 1, calls)
}

func TestClient_CreateIdentity_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", zap.NewNop())
	_, err := client.CreateIdentity(context.Background(), "a@b.com", "pw", Metadata{})
	assert.Error(t, err)
}

func TestClient_DeleteIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/auth/v1/admin/users/uid-1":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{}`))
		case "/auth/v1/admin/users/missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg":"User not found"}`))
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"database unavailable"}`))
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "k", zap.NewNop())

	assert.NoError(t, client.DeleteIdentity(context.Background(), "uid-1"))
	assert.ErrorIs(t, client.DeleteIdentity(context.Background(), "missing"), ErrIdentityNotFound)

	err := client.DeleteIdentity(context.Background(), "other")
	require.Error(t, err)
	assert.Equal(t, "database unavailable", err.Error())
}
