package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageShapes(t *testing.T) {
	require.Equal(t, "Voucher expired", ErrorMessage([]byte(`{"message":"Voucher expired"}`)))
	require.Equal(t, "Already used", ErrorMessage([]byte(`{"error":"Already used"}`)))
	require.Equal(t, "Not found", ErrorMessage([]byte(`{"error":{"code":"NOT_FOUND","message":"Not found"}}`)))
	require.Equal(t, "", ErrorMessage([]byte(`<html>oops</html>`)))
}

func TestClientDecodesEnvelopeAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			require.Equal(t, "1", r.URL.Query().Get("x"))
			_, _ = w.Write([]byte(`{"data":{"name":"pesan"}}`))
		default:
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"nope"}`))
		}
	}))
	defer srv.Close()

	c := New(Options{BaseURL: srv.URL + "/", Target: "test", Timeout: time.Second, Logger: zerolog.Nop()})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/ok", url.Values{"x": {"1"}}, nil, &out))
	require.Equal(t, "pesan", out.Name)

	err := c.Do(context.Background(), http.MethodPost, "/bad", nil, map[string]string{"a": "b"}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "nope", apiErr.Message)
}
