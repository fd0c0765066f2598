package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/climate-coil/internal/auth"
	"github.com/annel0/climate-coil/internal/config"
	"github.com/annel0/climate-coil/internal/eventbus"
	"github.com/annel0/climate-coil/internal/logging"
	"github.com/annel0/climate-coil/internal/regulator"
	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/storage"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
	"github.com/annel0/climate-coil/internal/world/block"
	_ "github.com/annel0/climate-coil/internal/world/block/implementations"
)

const testPassword = "correct horse battery staple"

type fixture struct {
	server  *DebugServer
	manager *regulator.Manager
	world   *world.World
	agents  *world.AgentRegistry
	history *EventHistory
	bus     eventbus.EventBus
}

func newFixture(t *testing.T, withAdmin bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := world.NewWorld(vec.Vec3{X: -6, Y: -6, Z: -6}, vec.Vec3{X: 6, Y: 6, Z: 6}, block.AirBlockID)
	for x := -6; x <= 6; x++ {
		for z := -6; z <= 6; z++ {
			w.SetBlock(vec.Vec3{X: x, Y: 6, Z: z}, block.StoneBlockID)
		}
	}

	cfg := config.Default().Regulator
	cfg.MaxDistance = 3
	cfg.FillInterval = 1
	cfg.EdgeInterval = 1
	cfg.SpreadInterval = 1
	cfg.EffectInterval = 1

	bus := eventbus.NewMemoryBus(256)
	t.Cleanup(func() { _ = bus.Close() })
	agents := world.NewAgentRegistry()
	quiet := logging.NewConsoleLogger("api", io.Discard)

	m, err := regulator.NewManager(regulator.ManagerOptions{
		Config: cfg,
		World:  w,
		Agents: agents,
		Store:  storage.NewMemoryStore(),
		Bus:    bus,
		Logger: quiet,
	})
	require.NoError(t, err)

	history := NewEventHistory(64)
	require.NoError(t, history.Attach(context.Background(), bus))
	t.Cleanup(history.Detach)

	apiCfg := Config{
		Manager:  m,
		World:    w,
		Agents:   agents,
		History:  history,
		Registry: prometheus.NewRegistry(),
		Logger:   quiet,
	}
	if withAdmin {
		hash, err := auth.HashPassword(testPassword)
		require.NoError(t, err)
		apiCfg.AdminPasswordHash = hash
	}
	s, err := NewDebugServer(apiCfg)
	require.NoError(t, err)

	w.SetBlock(vec.Vec3{}, block.CoilBlockID)
	m.TickAll(context.Background())

	return &fixture{server: s, manager: m, world: w, agents: agents, history: history, bus: bus}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Operator: "ops", Password: testPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func TestNewDebugServer_RequiresManager(t *testing.T) {
	_, err := NewDebugServer(Config{})
	assert.Error(t, err)
}

func TestDebugServer_HealthAndRegulators(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"regulators":1`)

	rec = f.do(t, http.MethodGet, "/api/regulators", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []RegulatorInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "coil_0_0_0", list[0].ID)
	assert.True(t, list[0].Powered)
	assert.Greater(t, list[0].Stats.Size, 0)

	rec = f.do(t, http.MethodGet, "/api/regulators/coil_9_9_9", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugServer_Region(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/regulators/coil_0_0_0/region", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var region RegionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &region))
	assert.Equal(t, 3, region.MaxDistance)

	r, ok := f.manager.Get("coil_0_0_0")
	require.True(t, ok)
	assert.Len(t, region.Spread, len(r.Snapshot().Spread))

	// Ячейки отсортированы по y, затем z, затем x
	for i := 1; i < len(region.Spread); i++ {
		a, b := region.Spread[i-1], region.Spread[i]
		assert.True(t, a.Y < b.Y || (a.Y == b.Y && (a.Z < b.Z || (a.Z == b.Z && a.X < b.X))))
	}
}

func TestRenderSlice(t *testing.T) {
	snap := spread.Snapshot{
		Source:      vec.Vec3{},
		MaxDistance: 1,
		Spread:      map[vec.Vec3]int{{X: 1}: 2},
		Edges:       map[vec.Vec3]int{{X: -1}: 1},
	}
	want := "...\n#@2\n...\n"
	assert.Equal(t, want, RenderSlice(snap, 0))
	assert.Equal(t, "...\n...\n...\n", RenderSlice(snap, 1))
}

func TestDebugServer_Slice(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/regulators/coil_0_0_0/slice", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n"), "\n")
	assert.Len(t, lines, 7, "бокс радиуса 3")
	assert.Equal(t, byte('@'), lines[3][3])
	assert.Equal(t, "12@21", lines[3][1:6], "сила убывает от источника")

	rec = f.do(t, http.MethodGet, "/api/regulators/coil_0_0_0/slice?y=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugServer_Regulated(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/regulated?x=1&y=0&z=0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Regulated bool           `json:"regulated"`
		Strengths map[string]int `json:"strengths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Regulated)
	assert.Equal(t, 2, resp.Strengths["coil_0_0_0"])

	rec = f.do(t, http.MethodGet, "/api/regulated?x=5&y=0&z=0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"regulated":false`)

	rec = f.do(t, http.MethodGet, "/api/regulated?x=1", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebugServer_Events(t *testing.T) {
	f := newFixture(t, false)

	ev, err := eventbus.NewEnvelope(eventbus.TypeRegionFilled, "coil_test", 5, eventbus.RegionFilledPayload{})
	require.NoError(t, err)
	f.history.Record(ev)

	rec := f.do(t, http.MethodGet, "/api/events?type=RegionFilled&source=coil_test", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []eventbus.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)

	rec = f.do(t, http.MethodGet, "/api/events?since=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/events/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "RegionFilled")
}

func TestDebugServer_MutationsDisabledWithoutPassword(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Operator: "ops", Password: "x"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/save", nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDebugServer_Login(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/auth/login", LoginRequest{Operator: "ops", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"operator": "ops"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.NotEmpty(t, f.login(t))
}

func TestDebugServer_ProtectedRoutes(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/regulators/coil_0_0_0/power", PowerRequest{On: false}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "без токена")

	token := f.login(t)
	rec = f.do(t, http.MethodPost, "/api/regulators/coil_0_0_0/power", PowerRequest{On: false}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, f.manager.IsPowered(vec.Vec3{}))

	f.manager.TickAll(context.Background())
	r, _ := f.manager.Get("coil_0_0_0")
	assert.Equal(t, 0, r.Stats().Size, "выключенная катушка сбрасывает область")

	rec = f.do(t, http.MethodPost, "/api/regulators/coil_0_0_0/refill", nil, token)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/blocks", BlockRequest{X: 1, Block: block.StoneBlockID}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, block.StoneBlockID, f.world.GetBlock(vec.Vec3{X: 1}))

	rec = f.do(t, http.MethodPost, "/api/blocks", BlockRequest{X: 1, Block: block.BlockID(9999)}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/agents", AgentRequest{X: 0, Y: 1, Z: 0}, token)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, f.agents.AgentsWithin(vec.Vec3{X: -1, Y: -1, Z: -1}, vec.Vec3{X: 1, Y: 1, Z: 1}), 1)

	rec = f.do(t, http.MethodPost, "/api/save", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDebugServer_MetricsEndpoint(t *testing.T) {
	f := newFixture(t, false)

	f.do(t, http.MethodGet, "/health", nil, "")
	rec := f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "debug_api")
}
