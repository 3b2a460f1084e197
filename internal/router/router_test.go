package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/roomshare/roomd/internal/handler"
	"github.com/roomshare/roomd/internal/registry"
	"github.com/roomshare/roomd/internal/shard"
)

func TestRegisterOpsRoutes(t *testing.T) {
	e := echo.New()
	h := handler.NewOpsHandler(registry.New(nil), shard.NewResolver(0), 0, nil, nil)
	RegisterOps(e, h)

	cases := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/status", http.StatusOK},
		{"/shard/abc12", http.StatusOK},
		{"/usage/vbrowser/top", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, tc.path)
	}
}
