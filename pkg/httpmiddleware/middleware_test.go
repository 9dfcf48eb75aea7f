package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	hit(h, nil)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	w := hit(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "abc-123") })
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = hit(h, func(r *http.Request) { r.Header.Set(RequestIDHeader, "bad\x00id") })
	assert.NotEqual(t, "bad\x00id", seen)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	assert.False(t, validRequestID(strings.Repeat("a", 129)))
}

func TestRecovery(t *testing.T) {
	h := Recovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := hit(h, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "internal", body.Kind)
}

func testRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return r
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	router := testRouter()
	find := MakeRouteFinder(router)

	h := Wrap(router, RequestID(), InjectLogger(zap.New(core)), LogRequests(find))
	hit(h, func(r *http.Request) {
		r.URL.Path = "/api/products/p1"
		r.Header.Set(RequestIDHeader, "req-1")
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/products/{id}", fields["route"])
	assert.Equal(t, int64(http.StatusNotFound), fields["status"])
	assert.Equal(t, "req-1", fields["request_id"])
}

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := InjectLogger(zap.New(core))(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("inside")
	}))
	hit(h, nil)
	require.Equal(t, 1, logs.Len())
}

func TestInstrument(t *testing.T) {
	router := testRouter()
	find := MakeRouteFinder(router)
	h := Wrap(router,
		Instrument("test", find, tracenoop.NewTracerProvider(), noop.NewMeterProvider()),
		Labeler(find),
	)

	w := hit(h, func(r *http.Request) { r.URL.Path = "/api/products/p1" })
	assert.Equal(t, http.StatusNotFound, w.Code)

	pattern, ok := find(httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.False(t, ok)
	assert.Empty(t, pattern)
}

func TestCORS(t *testing.T) {
	t.Run("Preflight", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://Shop.example"}, MaxAge: 600})(okHandler())
		w := hit(h, func(r *http.Request) {
			r.Method = http.MethodOptions
			r.Header.Set("Origin", "https://shop.example")
			r.Header.Set("Access-Control-Request-Method", http.MethodPatch)
			r.Header.Set("Access-Control-Request-Headers", "Authorization")
		})
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://Shop.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
		assert.Equal(t, "Authorization", w.Header().Get("Access-Control-Allow-Headers"))
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
	})
	t.Run("Wildcard", func(t *testing.T) {
		h := CORS(CORSConfig{})(okHandler())
		w := hit(h, func(r *http.Request) { r.Header.Set("Origin", "https://any.example") })
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	})
	t.Run("CredentialsEchoOrigin", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://a.example"}, AllowCredentials: true})(okHandler())
		w := hit(h, func(r *http.Request) { r.Header.Set("Origin", "https://a.example") })
		assert.Equal(t, "https://a.example", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})
	t.Run("Rejected", func(t *testing.T) {
		h := CORS(CORSConfig{AllowOrigins: []string{"https://a.example"}})(okHandler())
		w := hit(h, func(r *http.Request) { r.Header.Set("Origin", "https://evil.example") })
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", w.Header().Get("Vary"))
	})
}

