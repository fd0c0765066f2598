package api

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/annel0/climate-coil/internal/auth"
	"github.com/annel0/climate-coil/internal/regulator"
	"github.com/annel0/climate-coil/internal/spread"
	"github.com/annel0/climate-coil/internal/vec"
	"github.com/annel0/climate-coil/internal/world"
	"github.com/annel0/climate-coil/internal/world/block"
)

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RegulatorInfo краткое описание регулятора
type RegulatorInfo struct {
	ID       string          `json:"id"`
	Source   vec.Vec3        `json:"source"`
	Powered  bool            `json:"powered"`
	Modifier world.Modifier  `json:"modifier"`
	Stats    regulator.Stats `json:"stats"`
}

// Cell позиция области или границы с силой
type Cell struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Z        int `json:"z"`
	Strength int `json:"s"`
}

// RegionResponse снимок области для визуализации
type RegionResponse struct {
	ID          string   `json:"id"`
	Source      vec.Vec3 `json:"source"`
	MaxDistance int      `json:"max_distance"`
	Spread      []Cell   `json:"spread"`
	Edges       []Cell   `json:"edges"`
}

func (s *DebugServer) info(r *regulator.Regulator) RegulatorInfo {
	return RegulatorInfo{
		ID:       r.ID(),
		Source:   r.Source(),
		Powered:  s.cfg.Manager.IsPowered(r.Source()),
		Modifier: r.Modifier(),
		Stats:    r.Stats(),
	}
}

// lookup находит регулятор по :id или отвечает 404
func (s *DebugServer) lookup(c *gin.Context) (*regulator.Regulator, bool) {
	r, ok := s.cfg.Manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Регулятор не найден"})
		return nil, false
	}
	return r, true
}

// handleHealth возвращает статус сервера
func (s *DebugServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"regulators": len(s.cfg.Manager.List()),
		"ticks":      s.cfg.Manager.Ticks(),
		"timestamp":  time.Now().UTC(),
	})
}

// handleServerInfo возвращает метрики процесса
func (s *DebugServer) handleServerInfo(c *gin.Context) {
	data := gin.H{
		"uptime": s.metrics.GetUptime(),
		"memory": s.metrics.GetDetailedMemoryStats(),
	}
	if cpu, err := s.metrics.GetCPUUsage(); err == nil {
		data["cpu_percent"] = cpu
	}
	if rss, err := s.metrics.GetRSS(); err == nil {
		data["rss_mb"] = rss
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: data})
}

func (s *DebugServer) handleListRegulators(c *gin.Context) {
	regs := s.cfg.Manager.List()
	out := make([]RegulatorInfo, 0, len(regs))
	for _, r := range regs {
		out = append(out, s.info(r))
	}
	c.JSON(http.StatusOK, out)
}

func (s *DebugServer) handleGetRegulator(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.info(r))
}

func (s *DebugServer) handleGetRegion(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	snap := r.Snapshot()
	c.JSON(http.StatusOK, RegionResponse{
		ID:          r.ID(),
		Source:      snap.Source,
		MaxDistance: snap.MaxDistance,
		Spread:      cells(snap.Spread),
		Edges:       cells(snap.Edges),
	})
}

// cells превращает карту в отсортированный список
func cells(m map[vec.Vec3]int) []Cell {
	out := make([]Cell, 0, len(m))
	for p, s := range m {
		out = append(out, Cell{X: p.X, Y: p.Y, Z: p.Z, Strength: s})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		return a.X < b.X
	})
	return out
}

// handleGetSlice рисует горизонтальный срез области текстом.
// '@' источник, '#' граница, цифра - сила по модулю 10, '.' пусто.
func (s *DebugServer) handleGetSlice(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	snap := r.Snapshot()
	y := snap.Source.Y
	if q := c.Query("y"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный параметр y"})
			return
		}
		y = v
	}
	c.String(http.StatusOK, RenderSlice(snap, y))
}

// RenderSlice рисует срез снимка на высоте y в пределах бокса бюджета
func RenderSlice(snap spread.Snapshot, y int) string {
	lo, hi := snap.Source.Box(snap.MaxDistance)
	var sb strings.Builder
	for z := lo.Z; z <= hi.Z; z++ {
		for x := lo.X; x <= hi.X; x++ {
			p := vec.Vec3{X: x, Y: y, Z: z}
			switch {
			case p == snap.Source:
				sb.WriteByte('@')
			case snap.Spread[p] > 0:
				sb.WriteByte(byte('0' + snap.Spread[p]%10))
			case snap.Edges[p] > 0:
				sb.WriteByte('#')
			default:
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// handleRegulated отвечает, регулируется ли позиция и какими регуляторами
func (s *DebugServer) handleRegulated(c *gin.Context) {
	p, err := queryPos(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	strengths := make(map[string]int)
	for _, r := range s.cfg.Manager.List() {
		if st, ok := r.StrengthAt(p); ok {
			strengths[r.ID()] = st
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"position":   p,
		"regulated":  len(strengths) > 0,
		"strengths":  strengths,
		"open":       s.cfg.World.IsOpen(p),
		"sky_access": s.cfg.World.CanSeeSky(p),
	})
}

func queryPos(c *gin.Context) (vec.Vec3, error) {
	var p vec.Vec3
	for _, f := range []struct {
		name string
		dst  *int
	}{{"x", &p.X}, {"y", &p.Y}, {"z", &p.Z}} {
		v, err := strconv.Atoi(c.Query(f.name))
		if err != nil {
			return p, errBadCoord(f.name)
		}
		*f.dst = v
	}
	return p, nil
}

type errBadCoord string

func (e errBadCoord) Error() string { return "Неверная координата " + string(e) }

func (s *DebugServer) handleEvents(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "История событий отключена"})
		return
	}
	q := EventQuery{Source: c.Query("source"), Limit: 100}
	if t := c.Query("type"); t != "" {
		q.EventTypes = strings.Split(t, ",")
	}
	if l := c.Query("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			q.Limit = v
		}
	}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат since"})
			return
		}
		q.StartTime = &ts
	}
	c.JSON(http.StatusOK, s.cfg.History.Query(q))
}

func (s *DebugServer) handleEventStats(c *gin.Context) {
	if s.cfg.History == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "История событий отключена"})
		return
	}
	c.JSON(http.StatusOK, s.cfg.History.Stats())
}

// LoginRequest запрос токена оператора
type LoginRequest struct {
	Operator string `json:"operator" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *DebugServer) handleLogin(c *gin.Context) {
	if s.cfg.AdminPasswordHash == "" {
		c.JSON(http.StatusForbidden, GenericResponse{Success: false, Message: "Вход отключён"})
		return
	}
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	if !auth.CheckPassword(s.cfg.AdminPasswordHash, req.Password) {
		s.logger.Warn("⚠️ Неудачный вход оператора %s с %s", req.Operator, c.ClientIP())
		c.JSON(http.StatusUnauthorized, GenericResponse{Success: false, Message: "Неверный пароль"})
		return
	}
	token, err := s.cfg.Issuer.Issue(req.Operator)
	if err != nil {
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: "Ошибка генерации токена"})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Успешная авторизация", Data: gin.H{"token": token}})
}

// PowerRequest включение или выключение катушки
type PowerRequest struct {
	On bool `json:"on"`
}

func (s *DebugServer) handleSetPower(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	if err := s.cfg.Manager.SetPowered(r.Source(), req.On); err != nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	s.logger.Info("🔌 Оператор %s: питание %s = %v", c.GetString("operator"), r.ID(), req.On)
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Питание изменено"})
}

func (s *DebugServer) handleRefill(c *gin.Context) {
	r, ok := s.lookup(c)
	if !ok {
		return
	}
	r.RequestRefill()
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "Перезаливка назначена"})
}

// BlockRequest установка блока
type BlockRequest struct {
	X     int           `json:"x"`
	Y     int           `json:"y"`
	Z     int           `json:"z"`
	Block block.BlockID `json:"block"`
}

func (s *DebugServer) handleSetBlock(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	if req.Block != block.AirBlockID && !block.IsValidBlockID(req.Block) {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неизвестный блок"})
		return
	}
	p := vec.Vec3{X: req.X, Y: req.Y, Z: req.Z}
	changed := s.cfg.World.SetBlock(p, req.Block)
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: gin.H{"changed": changed}})
}

// AgentRequest появление агента
type AgentRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (s *DebugServer) handleSpawnAgent(c *gin.Context) {
	if s.cfg.Agents == nil {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "Агенты отключены"})
		return
	}
	var req AgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса"})
		return
	}
	id := s.cfg.Agents.Spawn(vec.Vec3{X: req.X, Y: req.Y, Z: req.Z})
	c.JSON(http.StatusCreated, GenericResponse{Success: true, Message: "Агент создан", Data: gin.H{"id": id}})
}

func (s *DebugServer) handleSave(c *gin.Context) {
	if err := s.cfg.Manager.SaveAll(c.Request.Context()); err != nil {
		s.logger.Error("❌ Сохранение по запросу оператора: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{Success: false, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "Сохранено"})
}
