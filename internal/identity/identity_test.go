package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/makenakalei/fika-scheduling/internal/domain"
)

type fakeUsers struct {
	users map[string]*domain.User
	err   error
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[userID], nil
}

func TestMiddleware(t *testing.T) {
	users := &fakeUsers{users: map[string]*domain.User{"u1": {UserID: "u1", Username: "ada"}}}

	var seen string
	h := Middleware(users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		assert.Equal(t, "ada", UserFromContext(r.Context()).Username)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "header", header: "u1", want: http.StatusNoContent},
		{name: "query fallback", query: "u1", want: http.StatusNoContent},
		{name: "missing", want: http.StatusUnauthorized},
		{name: "invalid", header: "../u1", want: http.StatusBadRequest},
		{name: "unknown", header: "u2", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			target := "/api/me"
			if tt.query != "" {
				target += "?user_id=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(UserHeaderName, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "u1", seen)
			}
		})
	}
}

func TestMiddlewareStoreError(t *testing.T) {
	h := Middleware(&fakeUsers{err: errors.New("db down")})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(UserHeaderName, "u1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
