// accolade/pkg/runtime/dashboard_test.go

package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDashboard(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	dashboard := NewDashboard(f.engine, ":0")

	assert.NotNil(t, dashboard)
	assert.Equal(t, f.engine, dashboard.engine)
	assert.Equal(t, ":0", dashboard.addr)
	assert.NotNil(t, dashboard.clients)
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	dashboard := NewDashboard(f.engine, ":0")

	rr := httptest.NewRecorder()
	dashboard.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","rules":1}`, rr.Body.String())
}

func TestHandleRules(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule, "build.yaml": buildRule})
	dashboard := NewDashboard(f.engine, ":0")

	rr := httptest.NewRecorder()
	dashboard.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rules", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var infos []RuleInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	byName := map[string]RuleInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.Equal(t, "third-build", byName["Third Build"].BadgeID)
	assert.NotEmpty(t, byName["Third Build"].Condition)
	assert.Empty(t, byName["Hello World"].Condition)
	assert.Contains(t, byName["Hello World"].Trigger, "fas.user.create")
}

func TestHandleStats(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	require.NoError(t, f.engine.ProcessEvent(context.Background(), f.archived(t, accountEvent("e1", "ralph"))))
	dashboard := NewDashboard(f.engine, ":0")

	rr := httptest.NewRecorder()
	dashboard.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, float64(1), stats["events_processed"])
	assert.Equal(t, float64(1), stats["awards_issued"])
	assert.Equal(t, float64(1), stats["active_rules"])
}

func TestHandleEvaluate(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	dashboard := NewDashboard(f.engine, ":0")

	body := `{"id":"dry","topic":"org.example.prod.fas.user.create","agent_name":"ralph"}`
	rr := httptest.NewRecorder()
	dashboard.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		EventID   string     `json:"event_id"`
		Decisions []Decision `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "dry", resp.EventID)
	require.Len(t, resp.Decisions, 1)
	assert.Equal(t, []string{"ralph"}, resp.Decisions[0].Awardees)
	assert.Empty(t, f.ledger.Awards("hello-world"))

	rr = httptest.NewRecorder()
	dashboard.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/evaluate", strings.NewReader(`{"id":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventsStream(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	dashboard := NewDashboard(f.engine, ":0")
	srv := httptest.NewServer(dashboard.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return dashboard.clientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.ProcessEvent(context.Background(), f.archived(t, accountEvent("e1", "decause"))))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n Notification
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, "decause", n.User)
	assert.Equal(t, "hello-world", n.BadgeID)
	assert.Equal(t, "org.example.badge.award", n.Topic)

	conn.Close()
	require.Eventually(t, func() bool { return dashboard.clientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDashboardStartStops(t *testing.T) {
	f := newFixture(t, map[string]string{"hello.yml": helloRule})
	dashboard := NewDashboard(f.engine, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dashboard.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dashboard did not stop")
	}
}
