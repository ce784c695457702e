package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdunlop/wprig-go/rig"
)

func mux(t *testing.T, options ...Option) *http.ServeMux {
	var rt routes
	require.NoError(t, rt.apply(options...))
	var mux http.ServeMux
	rt.RigMux(&mux)
	return &mux
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(`GET`, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func tag(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add(`X-Layer`, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestMiddlewareOrder(t *testing.T) {
	ok := func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`ok`)) }
	m := mux(t,
		Use(tag(`outer`)),
		Group(
			Use(tag(`inner`)),
			HandleFunc(`GET /grouped`, ok),
		),
		HandleFunc(`GET /plain`, ok),
	)
	assert.Equal(t, []string{`outer`, `inner`}, get(m, `/grouped`).Header().Values(`X-Layer`))
	assert.Equal(t, []string{`outer`}, get(m, `/plain`).Header().Values(`X-Layer`))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	m := mux(t,
		Use(AccessLog(log, zerolog.InfoLevel)),
		HandleFunc(`GET /app.js`, func(w http.ResponseWriter, r *http.Request) {
			zerolog.Ctx(r.Context()).Info().Msg(`inside`)
			w.WriteHeader(http.StatusTeapot)
		}),
	)
	w := get(m, `/app.js`)
	assert.Equal(t, http.StatusTeapot, w.Code)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var inside, access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &inside))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &access))
	assert.Equal(t, `GET`, inside[`method`])
	assert.Equal(t, `request`, access[`message`])
	assert.Equal(t, `/app.js`, access[`path`])
	assert.EqualValues(t, http.StatusTeapot, access[`status`])
}

func TestRigKeepsOptionErrors(t *testing.T) {
	broken := func(*routes) error { return errors.New(`broken`) }
	_, err := rig.New(Rig(HandleFunc(`GET /`, nil), broken))
	assert.ErrorContains(t, err, `broken`)
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`ok`)) })
	h := CORS(func(origin string) bool { return strings.HasSuffix(origin, `.test`) })(ok)

	w := get(h, `/`, `Origin`, `https://site.test`)
	assert.Equal(t, `https://site.test`, w.Header().Get(`Access-Control-Allow-Origin`))
	assert.Equal(t, `ok`, w.Body.String())

	w = get(h, `/`, `Origin`, `https://evil.example`)
	assert.Empty(t, w.Header().Get(`Access-Control-Allow-Origin`))
	assert.Equal(t, `ok`, w.Body.String())

	r := httptest.NewRequest(`OPTIONS`, `/`, nil)
	r.Header.Set(`Origin`, `https://site.test`)
	r.Header.Set(`Access-Control-Request-Method`, `GET`)
	r.Header.Set(`Access-Control-Request-Headers`, `x-requested-with`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, `x-requested-with`, w.Header().Get(`Access-Control-Allow-Headers`))
	assert.Empty(t, w.Body.String())

	r = httptest.NewRequest(`OPTIONS`, `/`, nil)
	r.Header.Set(`Origin`, `https://site.test`)
	r.Header.Set(`Access-Control-Request-Method`, `GET`)
	r.Header.Set(`Access-Control-Request-Private-Network`, `true`)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, `true`, w.Header().Get(`Access-Control-Allow-Private-Network`))
	assert.Equal(t, `https://site.test`, w.Header().Get(`Access-Control-Allow-Origin`))

	w = get(CORS(nil)(ok), `/`, `Origin`, `http://anything`)
	assert.Equal(t, `http://anything`, w.Header().Get(`Access-Control-Allow-Origin`))
}
