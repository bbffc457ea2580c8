package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/race-registration/internal/handler"
	"github.com/Shivanand-hulikatti/race-registration/internal/memstore"
	"github.com/Shivanand-hulikatti/race-registration/internal/model"
	"github.com/Shivanand-hulikatti/race-registration/internal/service"
)

const (
	secret = "test-secret"
	issuer = "identity"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func newServer(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	capacity := 1
	store.PutEvent(model.Event{
		ID:                 "evt-1",
		Status:             model.EventStatusPublished,
		RegistrationWindow: model.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
		EventDate:          now.Add(24 * time.Hour),
		Questions:          []model.Question{{ID: "q-1", Text: "Emergency contact", IsRequired: true}},
	})
	store.PutModality(model.Modality{ID: "mod-1", EventID: "evt-1", IsActive: true, Price: 10000, MaxParticipants: &capacity})
	store.PutKitItem(model.KitItem{ID: "kit-1", EventID: "evt-1", Sizes: []model.SizeStock{{Size: "M", Stock: 2}}})

	svc := service.NewRegistrationService(service.Deps{Store: store, Now: func() time.Time { return now }}, service.DefaultConfig())
	auth, err := handler.NewBearerAuth(secret, issuer)
	require.NoError(t, err)
	h := handler.NewRegistrationHandler(svc, service.NewInventoryService(store, store), zap.NewNop())
	return handler.NewRouter(h, auth, zap.NewNop()), store
}

func do(t *testing.T, srv http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, user))
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func validBody() model.CreateRegistrationRequest {
	return model.CreateRegistrationRequest{
		ModalityIDs:   []string{"mod-1"},
		TermsAccepted: true,
		RulesAccepted: true,
		Answers:       []model.AnswerInput{{QuestionID: "q-1", Answer: "Sam 555-0101"}},
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRegistrationLifecycleOverHTTP(t *testing.T) {
	srv, _ := newServer(t)

	rec := do(t, srv, http.MethodPost, "/events/evt-1/registrations", "user-a", validBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[model.Registration](t, rec)
	require.Equal(t, "user-a", reg.UserID)
	require.Equal(t, int64(10500), reg.FinalAmount)

	rec = do(t, srv, http.MethodPost, "/events/evt-1/registrations", "user-b", validBody())
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "modality_full", decode[model.ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodGet, "/registrations/"+reg.ID, "user-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/registrations/"+reg.ID, "user-b", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, srv, http.MethodGet, "/events/evt-1/registrations", "user-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]model.Registration](t, rec), 1)

	rec = do(t, srv, http.MethodPost, "/registrations/"+reg.ID+"/cancel", "user-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.RegistrationCancelled, decode[model.Registration](t, rec).Status)

	rec = do(t, srv, http.MethodPost, "/registrations/"+reg.ID+"/cancel", "user-a", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "already_cancelled", decode[model.ErrorResponse](t, rec).Code)

	rec = do(t, srv, http.MethodPost, "/events/evt-1/registrations", "user-b", validBody())
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestListShowsOnlyTheCallersRegistrations(t *testing.T) {
	srv, store := newServer(t)

	rec := do(t, srv, http.MethodPost, "/events/evt-1/registrations", "alice", validBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[model.Registration](t, rec)
	require.NoError(t, store.AttachCredential(context.Background(), reg.ID, "alice-check-in-token"))

	rec = do(t, srv, http.MethodGet, "/events/evt-1/registrations", "mallory", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]model.Registration](t, rec))
	require.NotContains(t, rec.Body.String(), "alice-check-in-token")

	rec = do(t, srv, http.MethodGet, "/events/evt-1/registrations", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	regs := decode[[]model.Registration](t, rec)
	require.Len(t, regs, 1)
	require.Equal(t, "alice", regs[0].UserID)
}

func TestCreateRegistrationErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name: "terms not accepted",
			path: "/events/evt-1/registrations",
			body: func() model.CreateRegistrationRequest {
				b := validBody()
				b.TermsAccepted = false
				return b
			}(),
			status: http.StatusBadRequest,
			code:   "terms_not_accepted",
		},
		{
			name:   "unknown event",
			path:   "/events/evt-ghost/registrations",
			body:   validBody(),
			status: http.StatusNotFound,
			code:   "event_not_found",
		},
		{
			name:   "unknown field",
			path:   "/events/evt-1/registrations",
			body:   map[string]any{"modality_ids": []string{"mod-1"}, "coupon": "FREE"},
			status: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newServer(t)
			rec := do(t, srv, http.MethodPost, tt.path, "user-a", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				require.Equal(t, tt.code, decode[model.ErrorResponse](t, rec).Code)
			}
			require.Equal(t, 0, store.Counts().Registrations)
		})
	}
}

func TestMissingAnswersAreReported(t *testing.T) {
	srv, _ := newServer(t)
	body := validBody()
	body.Answers = nil

	rec := do(t, srv, http.MethodPost, "/events/evt-1/registrations", "user-a", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[model.ErrorResponse](t, rec)
	require.Equal(t, "missing_required_answers", resp.Code)
	require.Equal(t, []string{"q-1"}, resp.MissingQuestionIDs)
}

func TestAuthenticationIsRequired(t *testing.T) {
	srv, _ := newServer(t)

	rec := do(t, srv, http.MethodPost, "/events/evt-1/registrations", "", validBody())
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-a", Issuer: issuer}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/events/evt-1/registrations", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, srv, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestKitAvailability(t *testing.T) {
	srv, _ := newServer(t)

	type availability struct {
		Available bool   `json:"available"`
		Reason    string `json:"reason"`
	}
	tests := []struct {
		query  string
		status int
		want   availability
	}{
		{query: "?size=M&quantity=2", status: http.StatusOK, want: availability{Available: true}},
		{query: "?size=M&quantity=3", status: http.StatusOK, want: availability{Reason: "insufficient_stock"}},
		{query: "?size=XL", status: http.StatusOK, want: availability{Reason: "size_unavailable"}},
		{query: "?size=M&quantity=0", status: http.StatusBadRequest},
		{query: "?size=M&quantity=two", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/kit-items/kit-1/availability"+tt.query, "user-a", nil)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				require.Equal(t, tt.want, decode[availability](t, rec))
			}
		})
	}

	rec := do(t, srv, http.MethodGet, "/kit-items/kit-ghost/availability?size=M", "user-a", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
