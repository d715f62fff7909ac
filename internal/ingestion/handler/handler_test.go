package handler

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

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

type stubIngester struct {
	resp *ingestion.IngestResponse
	err  error
	got  ingestion.RawBook
}

func (s *stubIngester) Ingest(_ context.Context, raw ingestion.RawBook) (*ingestion.IngestResponse, error) {
	s.got = raw
	return s.resp, s.err
}

func post(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/books", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)
	return rec
}

func TestIngestCreated(t *testing.T) {
	stub := &stubIngester{resp: &ingestion.IngestResponse{Book: records.Record{ISBN: "0306406152", Title: "Alpha"}, Created: true}}
	rec := post(New(stub), `{"isbn":"0-306-40615-2","title":"Alpha","genres":"Fiction"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "0-306-40615-2", stub.got.ISBN)
	assert.Equal(t, "Fiction", stub.got.Genres)

	var body ingestion.IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "0306406152", body.Book.ISBN)
}

func TestIngestUpdated(t *testing.T) {
	stub := &stubIngester{resp: &ingestion.IngestResponse{Book: records.Record{ISBN: "0306406152"}}}
	rec := post(New(stub), `{"isbn":"0306406152","title":"Alpha"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid_input", "body"},
		{"invalid isbn", `{"isbn":"x"}`, apperrors.Invalid("isbn", "bad"), http.StatusBadRequest, "invalid_input", "isbn"},
		{"store down", `{"isbn":"0306406152","title":"A"}`, errors.New("disk I/O error"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(New(&stubIngester{err: tt.err}), tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			var body apperrors.ErrorBody
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}
