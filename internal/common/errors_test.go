package common_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-giving/internal/common"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) common.ErrorBody {
	t.Helper()
	var body struct {
		Error common.ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestWriteErrorRendersAppError(t *testing.T) {
	rr := httptest.NewRecorder()
	cause := errors.New("amount must be positive")
	err := common.NewAppError(common.CodeValidationFailed, "invalid amount", http.StatusUnprocessableEntity, cause).
		WithDetails(map[string]string{"field": "amount"})
	common.WriteError(rr, err)

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, common.CodeValidationFailed, body.Code)
	require.Equal(t, "invalid amount", body.Message)
	require.True(t, errors.Is(err, cause))
	require.True(t, common.IsAppError(err))
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	common.WriteError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, common.CodeInternal, body.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestDecodeJSONIsStrict(t *testing.T) {
	var dst struct {
		Amount int64 `json:"amount"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":100}`))
	require.NoError(t, common.DecodeJSON(req, &dst))
	require.Equal(t, int64(100), dst.Amount)

	for _, body := range []string{`{"amount":100,"extra":true}`, `{"amount":100}{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		err := common.DecodeJSON(req, &dst)
		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr, body)
		require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	}

	rr := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":1000000000}`))
	req.Body = http.MaxBytesReader(rr, req.Body, 4)
	err := common.DecodeJSON(req, &dst)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusRequestEntityTooLarge, appErr.HTTPStatus)
}

func TestClientIPAndAtoi(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:5050"
	require.Equal(t, "10.0.0.9", common.ClientIP(req))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", common.ClientIP(req))

	require.Equal(t, 20, common.AtoiDefault("", 20, 100))
	require.Equal(t, 20, common.AtoiDefault("-3", 20, 100))
	require.Equal(t, 100, common.AtoiDefault("500", 20, 100))
	require.Equal(t, 7, common.AtoiDefault("7", 20, 0))
}
