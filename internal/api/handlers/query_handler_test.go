package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	middleware "github.com/kelechi-nwosu/enrichd/internal/api/middlewares"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

type fakeAnswerer struct {
	lastQuestion string
	lastTenant   string
	resp         *models.QueryResponse
	err          error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, tenantID string) (*models.QueryResponse, error) {
	f.lastQuestion = question
	f.lastTenant = tenantID
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func TestQueryReturnsAnswerAndSources(t *testing.T) {
	a := &fakeAnswerer{resp: &models.QueryResponse{
		Answer: "Section one covers it.",
		Sources: []models.QuerySource{
			{FileURL: "https://store/doc", Heading: "Section One", Score: 0.92},
		},
	}}
	h := NewQueryHandler(a, nil)

	body := strings.NewReader(`{"question":"what is covered?","tenantId":"t1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is covered?", a.lastQuestion)
	assert.Equal(t, "t1", a.lastTenant)

	var resp models.QueryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Section one covers it.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "Section One", resp.Sources[0].Heading)
}

func TestQueryTenantClaimOverridesBody(t *testing.T) {
	a := &fakeAnswerer{resp: &models.QueryResponse{Answer: "ok"}}
	h := NewQueryHandler(a, nil)

	body := strings.NewReader(`{"question":"q","tenantId":"from-body"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query", body)
	req = req.WithContext(middleware.WithTenant(req.Context(), "from-token"))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, "from-token", a.lastTenant)
}

func TestQueryRequiresQuestion(t *testing.T) {
	h := NewQueryHandler(&fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"tenantId":"t1"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	h := NewQueryHandler(&fakeAnswerer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryFailure(t *testing.T) {
	h := NewQueryHandler(&fakeAnswerer{err: errors.New("embed question: quota")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "quota")
}
