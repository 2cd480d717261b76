package responder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/RezaEskandarii/quirrel/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutes(t *testing.T) {
	routes := NewRoutes()
	hits := map[string]int{}

	for _, route := range []string{"/a", "/b"} {
		r, err := New(route, func(context.Context, string, types.JobMeta) error {
			hits[route]++
			return nil
		}, WithProduction(false))
		require.NoError(t, err)
		require.NoError(t, routes.Register(r))
	}

	dup, err := New("a", func(context.Context, string, types.JobMeta) error { return nil })
	require.NoError(t, err)
	assert.Error(t, routes.Register(dup))

	assert.Equal(t, []string{"/a", "/b"}, routes.List())
	assert.True(t, routes.Exists("b/"))
	assert.False(t, routes.Exists("/c"))

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/b", strings.NewReader(`"{}"`)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, hits["/b"])
	assert.Equal(t, 0, hits["/a"])

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/c", strings.NewReader(`"{}"`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
