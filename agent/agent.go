package agent

import (
	"sync"

	"github.com/a23comunicacoes/oregon-flow/action"
	"github.com/a23comunicacoes/oregon-flow/analytics"
	"github.com/a23comunicacoes/oregon-flow/config"
	"github.com/a23comunicacoes/oregon-flow/container"
	"github.com/a23comunicacoes/oregon-flow/engine"
	"github.com/a23comunicacoes/oregon-flow/graph"
	"github.com/a23comunicacoes/oregon-flow/logger"
	"github.com/a23comunicacoes/oregon-flow/rest"
	"github.com/a23comunicacoes/oregon-flow/sweeper"
	"github.com/a23comunicacoes/oregon-flow/trigger"
)

// Agent assembles and runs the whole service: storage, graph service,
// executor, sweeper and the http surface.
type Agent struct {
	Config       config.Config
	diContainer  *container.DIContiner
	graphService *graph.Service
	matcher      *trigger.Matcher
	executor     *engine.Engine
	sweep        *sweeper.Sweeper
	httpServer   *rest.Server
	shutdown     bool
	shutdownLock sync.Mutex
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{
		Config: conf,
	}
	setup := []func() error{
		a.setupDiContainer,
		a.setupGraphService,
		a.setupExecutor,
		a.setupSweeper,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupDiContainer() error {
	a.diContainer = container.NewDiContainer()
	return a.diContainer.Init(a.Config)
}

func (a *Agent) setupGraphService() error {
	a.graphService = graph.NewService(a.diContainer.GetGraphStore())
	return nil
}

func (a *Agent) setupExecutor() error {
	var notifier engine.Notifier = engine.NoopNotifier{}
	if a.Config.AnalyticsFile != "" {
		collector, err := analytics.NewLogFileCollector(a.Config.AnalyticsFile)
		if err != nil {
			return err
		}
		notifier = collector
	}
	dispatcher := action.NewDispatcher(a.diContainer.GetMessenger(), a.diContainer.GetRecordStore())
	a.matcher = trigger.NewMatcher(a.graphService, a.diContainer.GetRunStore())
	a.executor = engine.New(a.graphService, a.diContainer.GetRunStore(), dispatcher,
		a.matcher, a.diContainer.GetMessenger(), notifier)
	if a.Config.StepLimit > 0 {
		a.executor.SetStepLimit(a.Config.StepLimit)
	}
	return nil
}

func (a *Agent) setupSweeper() error {
	actionDispatcher := sweeper.NewActionDispatcher(a.diContainer.GetMessenger(),
		a.diContainer.GetRecordStore(), a.executor)
	a.sweep = sweeper.New(a.diContainer.GetRunStore(), a.diContainer.GetScheduledActionStore(),
		a.executor, actionDispatcher, a.Config.RunSweepInterval, a.Config.ActionSweepInterval)
	if a.Config.SweepBatchSize > 0 {
		a.sweep.SetBatchSize(a.Config.SweepBatchSize)
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.graphService, a.executor, a.matcher)
	return err
}

func (a *Agent) Start() error {
	a.sweep.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			_ = a.Shutdown()
			panic(err)
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		func() error {
			a.sweep.Stop()
			return nil
		},
		a.httpServer.Stop,
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
