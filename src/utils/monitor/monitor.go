package monitor

import (
	"math"
	"net/http"
	"time"

	"github.com/anchornet/observer/src/utils/task"

	"github.com/gammazero/deque"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Stores and computes monitor counters
type Monitor struct {
	*task.Task

	Report Report

	historySize int

	collector *Collector

	// Sync speed history
	SyncedBlocks          *deque.Deque[uint64]
	PersistedTransactions *deque.Deque[uint64]
}

func NewMonitor() (self *Monitor) {
	self = new(Monitor)

	self.Report.State.StartTimestamp.Store(time.Now().Unix())
	self.Report.State.Phase.Store("historical")

	self.collector = NewCollector().WithMonitor(self)

	self.Task = task.NewTask(nil, "monitor").
		WithPeriodicSubtaskFunc(time.Minute, self.monitorBlocks).
		WithPeriodicSubtaskFunc(time.Minute, self.monitorTransactions)
	return
}

func (self *Monitor) WithMaxHistorySize(maxHistorySize int) *Monitor {
	self.historySize = maxHistorySize

	self.SyncedBlocks = deque.New[uint64](self.historySize)
	self.PersistedTransactions = deque.New[uint64](self.historySize)

	return self
}

func (self *Monitor) GetReport() *Report {
	return &self.Report
}

func (self *Monitor) GetPrometheusCollector() (collector prometheus.Collector) {
	return self.collector
}

func round(f float64) float64 {
	return math.Round(f*100) / 100
}

// Measure block sync speed
func (self *Monitor) monitorBlocks() (err error) {
	loaded := self.Report.State.LastSyncedBlock.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	self.SyncedBlocks.PushBack(loaded)
	if self.SyncedBlocks.Len() > self.historySize {
		self.SyncedBlocks.PopFront()
	}
	value := float64(self.SyncedBlocks.Back()-self.SyncedBlocks.Front()) / float64(self.SyncedBlocks.Len())
	self.Report.State.AverageBlocksSyncedPerMinute.Store(round(value))
	return
}

// Measure transaction persist speed
func (self *Monitor) monitorTransactions() (err error) {
	loaded := self.Report.State.TransactionsPersisted.Load()
	if loaded == 0 {
		// Neglect the first 0
		return
	}

	self.PersistedTransactions.PushBack(loaded)
	if self.PersistedTransactions.Len() > self.historySize {
		self.PersistedTransactions.PopFront()
	}
	value := float64(self.PersistedTransactions.Back()-self.PersistedTransactions.Front()) / float64(self.PersistedTransactions.Len())
	self.Report.State.AverageTransactionsPersistedPerMinute.Store(round(value))
	return
}

func (self *Monitor) IsOK() bool {
	now := time.Now().Unix()
	if now-self.Report.State.StartTimestamp.Load() < 300 {
		return true
	}

	if self.Report.State.Phase.Load() == "historical" {
		// Catching up, healthy as long as blocks keep advancing
		return self.Report.State.AverageBlocksSyncedPerMinute.Load() > 0.1
	}

	// Live, healthy as long as the loop keeps ticking
	return now-self.Report.State.LastLoopTimestamp.Load() < 600
}

func (self *Monitor) OnGetState(c *gin.Context) {
	self.Report.State.UpForSeconds.Store(uint64(time.Now().Unix() - self.Report.State.StartTimestamp.Load()))

	c.JSON(http.StatusOK, &self.Report)
}

func (self *Monitor) OnGetHealth(c *gin.Context) {
	if self.IsOK() {
		c.Status(http.StatusOK)
	} else {
		c.Status(http.StatusServiceUnavailable)
	}
}
