package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type lightServer struct {
	*httptest.Server
	calls    atomic.Int32
	lastPath atomic.Value
}

func newLightServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *lightServer {
	t.Helper()
	ls := &lightServer{}
	ls.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.calls.Add(1)
		ls.lastPath.Store(r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["entity_id"] != "light.office_light" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(ls.Close)
	return ls
}

func TestLightTurnsOnAndOff(t *testing.T) {
	srv := newLightServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("[]"))
	})
	light := NewLight(srv.URL+"/", "secret", "light.office_light", time.Second)

	require.Equal(t, "The office light is now on, sir.", light.Invoke(context.Background(), map[string]any{"action": "on"}))
	require.Equal(t, "/api/services/light/turn_on", srv.lastPath.Load())

	require.Equal(t, "The office light is now off, sir.", light.Invoke(context.Background(), map[string]any{"action": " OFF "}))
	require.Equal(t, "/api/services/light/turn_off", srv.lastPath.Load())
}

func TestLightRejectsInvalidAction(t *testing.T) {
	srv := newLightServer(t, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	light := NewLight(srv.URL, "secret", "light.office_light", time.Second)

	for _, args := range []map[string]any{{"action": "dim"}, {}, {"action": 1}} {
		require.Equal(t, "Please specify on or off, sir.", light.Invoke(context.Background(), args))
	}
	require.Zero(t, srv.calls.Load())
}

func TestLightReportsUnexpectedStatus(t *testing.T) {
	srv := newLightServer(t, func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) })
	light := NewLight(srv.URL, "secret", "light.office_light", time.Second)

	require.Equal(t,
		"I attempted to turn on the office light, but Home Assistant returned 502.",
		light.Invoke(context.Background(), map[string]any{"action": "on"}),
	)
}

func TestLightSlowResponseAssumesSuccess(t *testing.T) {
	release := make(chan struct{})
	srv := newLightServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	})
	defer close(release)
	light := NewLight(srv.URL, "secret", "light.office_light", 50*time.Millisecond)

	require.Equal(t, "The office light should now be off, sir.", light.Invoke(context.Background(), map[string]any{"action": "off"}))
}

func TestLightUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	light := NewLight(url, "secret", "light.office_light", time.Second)
	require.Equal(t,
		"I couldn't reach Home Assistant just now, sir. The office light may not have changed.",
		light.Invoke(context.Background(), map[string]any{"action": "on"}),
	)
}

func TestLightLabel(t *testing.T) {
	require.Equal(t, "office light", (&Light{EntityID: "light.office_light"}).label())
	require.Equal(t, "kitchen light", (&Light{EntityID: "light.kitchen"}).label())
	require.Equal(t, "light", (&Light{EntityID: "light."}).label())
}

func TestLightDefinitionIsDirect(t *testing.T) {
	def := NewLight("http://ha", "t", "light.office_light", 0).Definition()
	require.Equal(t, "toggle_light", def.Name)
	require.True(t, def.Direct)
	require.Equal(t, []string{"on", "off"}, def.Parameters[0].Enum)
}

func TestClock(t *testing.T) {
	c := Clock{Now: func() time.Time { return time.Date(2026, 3, 9, 14, 5, 0, 0, time.Local) }}
	require.Equal(t, "It is 2:05 PM on Monday, March 9, 2026.", c.Invoke(context.Background(), nil))
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(Clock{}, NewLight("http://ha", "t", "light.office_light", 0))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())

	defs := reg.Definitions()
	require.Equal(t, "get_time", defs[0].Name)
	require.Equal(t, "toggle_light", defs[1].Name)

	_, ok := reg.Lookup("get_time")
	require.True(t, ok)
	_, ok = reg.Lookup("missing")
	require.False(t, ok)

	require.ErrorContains(t, reg.Register(Clock{}), "already registered")
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"s": "on", "n": 2, "nil": nil}
	require.Equal(t, "on", StringArg(args, "s"))
	require.Equal(t, "2", StringArg(args, "n"))
	require.Equal(t, "", StringArg(args, "nil"))
	require.Equal(t, "", StringArg(args, "missing"))
}
