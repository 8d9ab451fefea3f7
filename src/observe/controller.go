package observe

import (
	"github.com/anchornet/observer/src/protocol/core"
	"github.com/anchornet/observer/src/utils/cas"
	"github.com/anchornet/observer/src/utils/config"
	"github.com/anchornet/observer/src/utils/eth"
	"github.com/anchornet/observer/src/utils/model"
	"github.com/anchornet/observer/src/utils/monitor"
	"github.com/anchornet/observer/src/utils/publisher"
	"github.com/anchornet/observer/src/utils/task"
)

type Controller struct {
	*task.Task
}

// Main class that orchestrates the observer functionalities.
// Lifecycle is explicit through Start/Stop, there is no global state.
func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)

	self.Task = task.NewTask(config, "controller")

	// SQL database
	db, err := model.NewConnection(self.Ctx, config, "observer")
	if err != nil {
		return
	}

	transactionStore := model.NewTransactionStore(db)
	operationStore := model.NewOperationStore(db)
	unresolvableStore := model.NewUnresolvableTransactionStore(db)

	// Chain client
	chainClient, err := eth.NewClient(&config.Chain)
	if err != nil {
		return
	}
	chainClient.WithDeploymentBlock(config.Observer.ContractDeploymentBlock)

	// CAS client
	casClient := cas.NewClient(&config.Cas)

	// Monitoring
	monitor := monitor.NewMonitor().
		WithMaxHistorySize(30)

	// Protocol versions and their processors
	processor := core.NewProcessor(config).
		WithCas(casClient).
		WithOperationStore(operationStore).
		WithMonitor(monitor)

	versions := NewVersionManager([]ProtocolVersion{
		{Name: "1.0", StartTime: config.Observer.ContractDeploymentBlock, Processor: processor},
	})

	// The observer itself
	observer := NewObserver(config).
		WithChain(chainClient).
		WithTransactionStore(transactionStore).
		WithOperationStore(operationStore).
		WithUnresolvableStore(unresolvableStore).
		WithVersionManager(versions).
		WithMonitor(monitor)

	server := NewServer(config).
		WithMonitor(monitor).
		WithObserver(observer).
		WithTransactionReader(transactionStore)

	// Event sink
	events := publisher.NewRedisPublisher[*Event](config, "events-publisher").
		WithInputChannel(observer.Events)

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(server.Task).
		WithSubtask(observer.Task).
		WithConditionalSubtask(config.Redis.Enabled, events.Task).
		WithOnAfterStop(func() {
			chainClient.Close()
		})

	return
}
