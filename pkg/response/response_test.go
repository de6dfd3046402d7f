package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/gestion-notas-api/pkg/errors"
	"github.com/noah-isme/gestion-notas-api/pkg/middleware/requestid"
)

func serve(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", h)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-42")
	r.ServeHTTP(rec, req)
	return rec
}

func TestErrorEchoesRequestID(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrDuplicateCode, "student code EST000001 already in use"))
	})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DUPLICATE_CODE", body.Error.Code)
	assert.Equal(t, "req-42", body.Meta["request_id"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestErrorHidesUnknownFailures(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Error(c, errors.New("pq: connection reset"))
	})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestAttachment(t *testing.T) {
	rec := serve(func(c *gin.Context) {
		Attachment(c, "notas_cur0001.csv", "text/csv; charset=utf-8", []byte("Codigo\n"))
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="notas_cur0001.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Codigo\n", rec.Body.String())
}
