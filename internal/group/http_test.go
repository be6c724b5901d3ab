package group

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WillSoph/top-game-score/internal/identity"
	"github.com/WillSoph/top-game-score/internal/store/memory"
)

func newTestMux(t *testing.T) (*http.ServeMux, *Service) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, Options{}, zerolog.Nop())
	handlers := NewHTTPHandlers(svc, zerolog.Nop())

	asPrincipal := func(fn http.HandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			uid := r.Header.Get("X-Test-UID")
			if uid == "" {
				fn(w, r)
				return
			}
			ctx := identity.IntoContext(r.Context(), identity.Principal{ID: uid, Kind: identity.KindGuest})
			fn(w, r.WithContext(ctx))
		})
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/groups", asPrincipal(handlers.Create))
	mux.Handle("GET /v1/groups/{id}", asPrincipal(handlers.Get))
	mux.Handle("POST /v1/groups/{id}/claim", asPrincipal(handlers.ClaimHost))
	mux.Handle("POST /v1/groups/{id}/questions", asPrincipal(handlers.AddQuestion))
	mux.Handle("POST /v1/groups/{id}/open", asPrincipal(handlers.Open))
	mux.Handle("POST /v1/groups/{id}/finish", asPrincipal(handlers.Finish))
	mux.Handle("POST /v1/groups/{id}/join", asPrincipal(handlers.Join))
	mux.Handle("POST /v1/groups/{id}/answers", asPrincipal(handlers.SubmitAnswer))
	return mux, svc
}

func doRequest(mux *http.ServeMux, method, target, uid, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if uid != "" {
		req.Header.Set("X-Test-UID", uid)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTPCreateAndGetGroup(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/v1/groups", "host-1", `{"title":"Trivia Night","maxTimeSec":30}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created GroupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, 30, created.MaxTimeSec)
	assert.Equal(t, -1, created.CurrentQuestionIndex)

	rec = doRequest(mux, http.MethodGet, "/v1/groups/"+created.ID, "host-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTPRequiresPrincipal(t *testing.T) {
	mux, _ := newTestMux(t)

	rec := doRequest(mux, http.MethodPost, "/v1/groups", "", `{"title":"t"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPErrorMapping(t *testing.T) {
	mux, svc := newTestMux(t)
	ctx := context.Background()

	g, err := svc.Create(ctx, "host-1", "t", 20, "en")
	require.NoError(t, err)
	_, err = svc.AddQuestion(ctx, g.ID, "host-1", "Q?", []string{"a", "b"}, 0)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		target string
		uid    string
		body   string
		want   int
	}{
		{"unknown group", http.MethodGet, "/v1/groups/nope", "p1", "", http.StatusNotFound},
		{"non-host question", http.MethodPost, "/v1/groups/" + g.ID + "/questions", "stranger", `{"text":"Q?","options":["a","b"],"correctIndex":0}`, http.StatusForbidden},
		{"invalid question", http.MethodPost, "/v1/groups/" + g.ID + "/questions", "host-1", `{"text":"","options":["a","b"],"correctIndex":0}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/v1/groups/" + g.ID + "/questions", "host-1", `{`, http.StatusBadRequest},
		{"join before open", http.MethodPost, "/v1/groups/" + g.ID + "/join", "p1", `{"name":"Ana","handle":"@ana"}`, http.StatusConflict},
		{"answer before open", http.MethodPost, "/v1/groups/" + g.ID + "/answers", "p1", `{"questionIndex":0,"chosenIndex":0}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(mux, tt.method, tt.target, tt.uid, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestHTTPFullPlayFlow(t *testing.T) {
	mux, svc := newTestMux(t)
	ctx := context.Background()

	rec := doRequest(mux, http.MethodPost, "/v1/groups", "host-1", `{"title":"t"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var g GroupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &g))

	rec = doRequest(mux, http.MethodPost, "/v1/groups/"+g.ID+"/questions", "host-1", `{"text":"Q?","options":["a","b"],"correctIndex":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/v1/groups/"+g.ID+"/open", "host-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/v1/groups/"+g.ID+"/join", "p1", `{"name":"Ana","handle":"@ana"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodPost, "/v1/groups/"+g.ID+"/answers", "p1", `{"questionIndex":0,"chosenIndex":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Correct)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1000, res.ScoreAwarded)

	// A resend is a 200 with the stored score flagged as duplicate.
	rec = doRequest(mux, http.MethodPost, "/v1/groups/"+g.ID+"/answers", "p1", `{"questionIndex":0,"chosenIndex":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1000, res.ScoreAwarded)

	p, err := svc.Player(ctx, g.ID, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1000, p.TotalScore)
}
