package observe

import (
	"context"
	"net/http"
	"strconv"

	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/monitor"
	"github.com/anchornet/observer/src/utils/task"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Read surface used by the transactions endpoint
type transactionReader interface {
	GetTransactionsLaterThan(ctx context.Context, since *uint64, limit int) ([]eth.AnchorRecord, error)
}

// Rest API server, serves monitor counters and the observer's sync state
type Server struct {
	*task.Task

	httpServer *http.Server
	Router     *gin.Engine

	monitor      *monitor.Monitor
	observer     *Observer
	transactions transactionReader
}

func NewServer(config *config.Config) (self *Server) {
	self = new(Server)

	self.Task = task.NewTask(config, "server").
		WithSubtaskFunc(self.run).
		WithOnStop(self.stop)

	self.Router = gin.New()

	self.httpServer = &http.Server{
		Addr:    config.RESTListenAddress,
		Handler: self.Router,
	}

	return
}

func (self *Server) WithMonitor(monitor *monitor.Monitor) *Server {
	self.monitor = monitor
	return self
}

func (self *Server) WithObserver(observer *Observer) *Server {
	self.observer = observer
	return self
}

func (self *Server) WithTransactionReader(transactions transactionReader) *Server {
	self.transactions = transactions
	return self
}

func (self *Server) run() (err error) {
	if self.Config.IsDevelopment {
		gin.SetMode(gin.DebugMode)
		pprof.Register(self.Router)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	err = registry.Register(self.monitor.GetPrometheusCollector())
	if err != nil {
		return
	}
	self.Router.GET("metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := self.Router.Group("v1")
	{
		v1.GET("state", self.monitor.OnGetState)
		v1.GET("health", self.monitor.OnGetHealth)
		v1.GET("sync-state", self.onGetSyncState)
		v1.GET("transactions", self.onGetTransactions)
	}

	err = self.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		self.Log.WithError(err).Error("Failed to start REST server")
		return
	}
	return nil
}

func (self *Server) onGetSyncState(c *gin.Context) {
	state := self.observer.GetSyncState()
	c.JSON(http.StatusOK, &state)
}

func (self *Server) onGetTransactions(c *gin.Context) {
	var since *uint64
	if raw, ok := c.GetQuery("since"); ok {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since parameter"})
			return
		}
		since = &parsed
	}

	limit := 100
	if raw, ok := c.GetQuery("limit"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit parameter"})
			return
		}
		limit = parsed
	}

	records, err := self.transactions.GetTransactionsLaterThan(c.Request.Context(), since, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read transactions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

func (self *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.httpServer.Shutdown(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to gracefully shutdown REST server")
		return
	}
}
