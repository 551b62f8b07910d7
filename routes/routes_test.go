package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/phillip/labapp-server-go/config"
	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	services "github.com/phillip/labapp-server-go/services"
	"github.com/phillip/labapp-server-go/store/memory"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Silence()
	os.Exit(m.Run())
}

type testServer struct {
	t      *testing.T
	r      *gin.Engine
	token  string
	remote string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	st := memory.New()
	resolver := services.NewEventResolver(st, st)
	presence := services.NewPresenceReconciler(st, st, time.Hour)
	t.Cleanup(presence.Stop)

	r := gin.New()
	require.NoError(t, r.SetTrustedProxies(cfg.TrustedProxies))
	SetupRoutes(r, cfg, Deps{
		Events:   services.NewEventService(st, st),
		Resolver: resolver,
		Voting:   services.NewVotingEngine(st, st, st, services.WeightsClassic),
		Results:  services.NewResultsManager(resolver, st, st),
		Presence: presence,
	})
	return &testServer{t: t, r: r}
}

func (s *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	if s.remote != "" {
		req.RemoteAddr = s.remote
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out.Error
}

func TestVotingFlow(t *testing.T) {
	srv := newTestServer(t, &config.Config{APIKey: "k", AdminKey: "adm", JWTSecret: "shh", TokenTTL: time.Hour})

	w := srv.do("POST", "/auth/token", gin.H{"key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do("POST", "/auth/token", gin.H{"key": "adm"})
	require.Equal(t, http.StatusOK, w.Code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)

	create := gin.H{
		"name":        "The Pitch",
		"description": "Choose the three pitches with the most merit",
		"options":     []string{"Pitch 1", "Pitch 2", "Pitch 3", "Pitch 4"},
		"startTime":   time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		"endTime":     time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	}

	// admin routes need the token, the key alone is not enough
	w = srv.do("POST", "/voting/create?key=k", create)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	srv.token = tok.Token
	w = srv.do("POST", "/voting/create", create)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing api key")

	w = srv.do("POST", "/voting/create?key=k", create)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Complete", w.Body.String())

	w = srv.do("POST", "/voting/create?key=k", create)
	assert.Equal(t, http.StatusConflict, w.Code)

	// --- current ---
	srv.token = ""
	w = srv.do("GET", "/voting/current?key=k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "score")
	assert.NotContains(t, w.Body.String(), "startTime")
	var current models.EventView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &current))
	require.Len(t, current.Options, 4)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	w = srv.do("GET", "/voting/current?key=k", nil, "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)

	// --- submit ---
	ballot := gin.H{
		"event":  current.ID,
		"first":  current.Options[0].ID,
		"second": current.Options[1].ID,
		"third":  current.Options[2].ID,
		"user":   "john.kotz@dali.dartmouth.edu",
	}
	w = srv.do("POST", "/voting/submit?key=k", ballot)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do("POST", "/voting/submit?key=k", ballot)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	srv.remote = "203.0.113.9:4000"
	w = srv.do("POST", "/voting/submit?key=k", gin.H{"event": current.ID, "first": current.Options[0].ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	srv.remote = ""

	// --- results ---
	w = srv.do("GET", "/voting/results/final?key=k", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Event has not released results yet!", errorOf(t, w))

	w = srv.do("GET", "/voting/results/current?key=k", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	srv.token = tok.Token
	w = srv.do("GET", "/voting/results/current?key=k", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var live models.EventView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	scores := map[string]int{}
	for _, o := range live.Options {
		require.NotNil(t, o.Score)
		scores[o.Name] = *o.Score
	}
	assert.Equal(t, map[string]int{"Pitch 1": 5, "Pitch 2": 3, "Pitch 3": 1, "Pitch 4": 0}, scores)

	w = srv.do("POST", "/voting/release?key=k", gin.H{
		"event":   current.ID,
		"winners": []gin.H{{"id": current.Options[0].ID, "award": "Best"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do("POST", "/voting/release?key=k", gin.H{
		"event":   current.ID,
		"winners": []gin.H{{"id": current.Options[1].ID, "award": "Second"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	srv.token = ""
	w = srv.do("GET", "/voting/results/final?key=k&event="+current.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Pitch 1","award":"Best"}]`, w.Body.String())

	srv.remote = "198.51.100.2:4000"
	w = srv.do("POST", "/voting/submit?key=k", ballot)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Event is no longer accepting votes", errorOf(t, w))
}

// seedCurrent creates an open event and returns its public view.
func seedCurrent(t *testing.T, srv *testServer) models.EventView {
	t.Helper()
	w := srv.do("POST", "/voting/create", gin.H{
		"name":        "The Pitch",
		"description": "vote",
		"options":     []string{"A", "B", "C", "D"},
		"startTime":   time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		"endTime":     time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = srv.do("GET", "/voting/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view models.EventView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	return view
}

func ballotOf(e models.EventView) gin.H {
	return gin.H{"event": e.ID, "first": e.Options[0].ID, "second": e.Options[1].ID, "third": e.Options[2].ID}
}

func TestSubmit_ForwardedForIgnoredByDefault(t *testing.T) {
	srv := newTestServer(t, &config.Config{})
	current := seedCurrent(t, srv)
	srv.remote = "192.0.2.10:5555"

	w := srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "1.1.1.1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, xff := range []string{"2.2.2.2", "3.3.3.3"} {
		w = srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", xff)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, "xff %s", xff)
	}

	w = srv.do("GET", "/voting/results/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var live models.EventView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &live))
	assert.Equal(t, 5, *live.Options[0].Score)
}

func TestSubmit_ForwardedForFromTrustedProxy(t *testing.T) {
	srv := newTestServer(t, &config.Config{TrustedProxies: []string{"10.0.0.0/8"}})
	current := seedCurrent(t, srv)
	srv.remote = "10.1.2.3:443"

	w := srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "198.51.100.7")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "198.51.100.8")
	assert.Equal(t, http.StatusOK, w.Code, "distinct clients behind the proxy")
	w = srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "198.51.100.8")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	// an untrusted peer cannot claim another address
	srv.remote = "203.0.113.50:1000"
	w = srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "198.51.100.9")
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do("POST", "/voting/submit", ballotOf(current), "X-Forwarded-For", "198.51.100.10")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestLocationFlow(t *testing.T) {
	srv := newTestServer(t, &config.Config{APIKey: "k"})

	// location is open unless GateLocation is set
	w := srv.do("POST", "/location/enterExit", gin.H{
		"user":   gin.H{"email": "ada@dali.dev", "name": "Ada"},
		"inDALI": true,
		"share":  true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Noted", w.Body.String())

	w = srv.do("POST", "/location/enterExit", gin.H{"user": gin.H{"email": ""}, "inDALI": true, "share": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do("GET", "/location/shared", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"email":"ada@dali.dev","name":"Ada","inDALI":true,"shared":true}]`, w.Body.String())

	w = srv.do("GET", "/location/tim", nil)
	assert.JSONEq(t, `{"inDALI":false,"inOffice":false}`, w.Body.String())

	w = srv.do("POST", "/location/tim", gin.H{"location": "OFFICE", "enter": true})
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do("GET", "/location/tim", nil)
	assert.JSONEq(t, `{"inDALI":false,"inOffice":true}`, w.Body.String())

	w = srv.do("POST", "/location/tim", gin.H{"location": "ROOF", "enter": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do("POST", "/location/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Complete!", w.Body.String())

	w = srv.do("GET", "/location/shared", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
	w = srv.do("GET", "/location/tim", nil)
	assert.JSONEq(t, `{"inDALI":false,"inOffice":false}`, w.Body.String())
}

func TestLocationGate(t *testing.T) {
	srv := newTestServer(t, &config.Config{APIKey: "k", GateLocation: true})

	assert.Equal(t, http.StatusUnauthorized, srv.do("GET", "/location/shared", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do("GET", "/location/shared", nil, "X-API-Key", "k").Code)
}

func TestHealthAndTokenUnconfigured(t *testing.T) {
	srv := newTestServer(t, &config.Config{})

	w := srv.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = srv.do("POST", "/auth/token", gin.H{"key": "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// no key, no secret: every route is open
	w = srv.do("GET", "/voting/current", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
