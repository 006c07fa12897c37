// accolade/pkg/runtime/dashboard.go

package runtime

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rgehrsitz/accolade/pkg/event"
	"rgehrsitz/accolade/pkg/logging"
)

type Dashboard struct {
	engine       *Engine
	addr         string
	router       *gin.Engine
	clients      map[*websocket.Conn]bool
	clientsMutex sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RuleInfo describes a loaded rule.
type RuleInfo struct {
	Name      string   `json:"name"`
	BadgeID   string   `json:"badge_id"`
	Source    string   `json:"source,omitempty"`
	Trigger   string   `json:"trigger"`
	Condition string   `json:"condition,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

func NewDashboard(engine *Engine, addr string) *Dashboard {
	gin.SetMode(gin.ReleaseMode)
	d := &Dashboard{
		engine:  engine,
		addr:    addr,
		router:  gin.New(),
		clients: make(map[*websocket.Conn]bool),
	}
	d.router.Use(gin.Recovery())
	d.router.GET("/health", d.handleHealth)
	d.router.GET("/rules", d.handleRules)
	d.router.GET("/stats", d.handleStats)
	d.router.POST("/evaluate", d.handleEvaluate)
	d.router.GET("/events", d.handleWebSocket)

	engine.OnAward(d.broadcast)
	return d
}

func (d *Dashboard) Handler() http.Handler {
	return d.router
}

// Start serves the dashboard until ctx is done.
func (d *Dashboard) Start(ctx context.Context) error {
	srv := &http.Server{Addr: d.addr, Handler: d.router, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		logging.Logger.Info().Str("addr", d.addr).Msg("Dashboard starting")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (d *Dashboard) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rules": len(d.engine.Rules())})
}

func (d *Dashboard) handleRules(c *gin.Context) {
	active := d.engine.Rules()
	out := make([]RuleInfo, 0, len(active))
	for _, r := range active {
		info := RuleInfo{
			Name:    r.Name,
			BadgeID: r.BadgeID,
			Source:  r.Source,
			Trigger: r.Trigger.String(),
			Tags:    r.Tags,
		}
		if r.Condition != nil {
			info.Condition = r.Condition.String()
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

func (d *Dashboard) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, d.engine.GetStats())
}

func (d *Dashboard) handleEvaluate(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, err := event.Decode(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"event_id": ev.ID, "decisions": d.engine.Evaluate(c.Request.Context(), ev)})
}

func (d *Dashboard) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("Error upgrading to WebSocket")
		return
	}
	defer conn.Close()

	logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Client connected")

	d.clientsMutex.Lock()
	d.clients[conn] = true
	d.clientsMutex.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMutex.Lock()
	delete(d.clients, conn)
	d.clientsMutex.Unlock()

	logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Client disconnected")
}

// broadcast sends an award notification to every connected client.
func (d *Dashboard) broadcast(n Notification) {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	for client := range d.clients {
		client.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := client.WriteJSON(n); err != nil {
			logging.Logger.Debug().Err(err).Msg("Error sending award to client")
			client.Close()
			delete(d.clients, client)
		}
	}
}

func (d *Dashboard) clientCount() int {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	return len(d.clients)
}

func (d *Dashboard) closeClients() {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	for client := range d.clients {
		client.Close()
		delete(d.clients, client)
	}
}
