package errors_test

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	uierrors "github.com/dalemusser/bourses/internal/app/features/errors"
	"github.com/dalemusser/bourses/internal/app/services/records"
	institutionstore "github.com/dalemusser/bourses/internal/app/store/institutions"
	"github.com/dalemusser/bourses/internal/app/system/cipher"
	"github.com/dalemusser/bourses/internal/app/system/fiscal"
	"github.com/dalemusser/bourses/internal/app/system/lifecycle"
	"github.com/dalemusser/bourses/internal/app/system/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("get application: %w", sentinel.ErrNotFound), http.StatusNotFound},
		{"precondition", sentinel.ErrPreconditionFailed, http.StatusConflict},
		{"transition", lifecycle.ErrInvalidTransition, http.StatusConflict},
		{"duplicate institution", institutionstore.ErrDuplicateInstitution, http.StatusConflict},
		{"lookup", &fiscal.LookupError{Kind: "timeout", Err: stderrors.New("deadline")}, http.StatusBadGateway},
		{"validation", &records.ValidationError{Err: records.ErrInvalidPayload}, http.StatusUnprocessableEntity},
		{"encoding", fmt.Errorf("seal: %w", cipher.ErrEncoding), http.StatusBadRequest},
		{"integrity", cipher.ErrIntegrity, http.StatusInternalServerError},
		{"decoding", cipher.ErrDecoding, http.StatusInternalServerError},
		{"bad request", uierrors.BadRequest("bad id %q", "x"), http.StatusBadRequest},
		{"too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{"rate limited", fmt.Errorf("%w: 192.0.2.1", uierrors.ErrRateLimited), http.StatusTooManyRequests},
		{"other", stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, uierrors.StatusOf(tt.err))
		})
	}
}

func TestWrite(t *testing.T) {
	el := uierrors.NewErrorLogger(zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/institutions/x/applications", nil)
	rec := httptest.NewRecorder()
	el.Write(rec, req, "create failed", &records.ValidationError{
		Err:      records.ErrInvalidPayload,
		Problems: []string{"guardian.email: Does not match format 'email'"},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Error    string   `json:"error"`
		Code     string   `json:"code"`
		Problems []string `json:"problems"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, uierrors.CodeInvalid, body.Code)
	assert.Equal(t, records.ErrInvalidPayload.Error(), body.Error)
	assert.Len(t, body.Problems, 1)
}

func TestWrite_HidesInternalErrors(t *testing.T) {
	el := uierrors.NewErrorLogger(nil)
	rec := httptest.NewRecorder()
	el.Write(rec, httptest.NewRequest(http.MethodGet, "/", nil), "view failed",
		fmt.Errorf("decode application: %w", cipher.ErrIntegrity))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "integrity")
	assert.Contains(t, rec.Body.String(), uierrors.CodeInternal)
}

func TestDecodeJSON(t *testing.T) {
	decode := func(body string, limit int64) (map[string]any, error) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var v map[string]any
		err := uierrors.DecodeJSON(httptest.NewRecorder(), req, limit, &v)
		return v, err
	}

	v, err := decode(`{"amount": 12.5}`, 1024)
	require.NoError(t, err)
	assert.Equal(t, 12.5, v["amount"])

	_, err = decode(``, 1024)
	assert.ErrorIs(t, err, uierrors.ErrBadRequest)

	_, err = decode(`{"a":`, 1024)
	assert.ErrorIs(t, err, uierrors.ErrBadRequest)

	_, err = decode(`{} {}`, 1024)
	assert.ErrorIs(t, err, uierrors.ErrBadRequest)

	_, err = decode(`{"text":"`+strings.Repeat("x", 200)+`"}`, 64)
	var tooLarge *http.MaxBytesError
	assert.True(t, stderrors.As(err, &tooLarge), "got %v", err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, uierrors.StatusOf(err))
}

func TestInvalid(t *testing.T) {
	err := uierrors.Invalid("name is required", "contact must be an e-mail address")
	assert.ErrorIs(t, err, uierrors.ErrInvalidInput)
	assert.Equal(t, http.StatusUnprocessableEntity, uierrors.StatusOf(err))

	rec := httptest.NewRecorder()
	uierrors.NewErrorLogger(nil).Write(rec, httptest.NewRequest(http.MethodPost, "/api/institutions", nil), "create institution", err)
	assert.Contains(t, rec.Body.String(), "contact must be an e-mail address")
}
