// Command workflow-engine is the composition root for the execution core:
// it wires the State Store, Job Queue, Adapter Registry, Recovery Manager,
// Worker, and HTTP Edge together and runs them until told to stop.
//
// Grounded on backend/runner/cmd/bb-runner/main.go's shape: parse flags,
// build the app, run recovery/cleanup synchronously before serving, start
// background services, then block on a signal context.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buildbeaver/workflow-engine/internal/adapter"
	"github.com/buildbeaver/workflow-engine/internal/config"
	"github.com/buildbeaver/workflow-engine/internal/httpapi"
	"github.com/buildbeaver/workflow-engine/internal/lifecycle"
	"github.com/buildbeaver/workflow-engine/internal/logger"
	"github.com/buildbeaver/workflow-engine/internal/queue"
	"github.com/buildbeaver/workflow-engine/internal/recovery"
	"github.com/buildbeaver/workflow-engine/internal/store"
	"github.com/buildbeaver/workflow-engine/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	fmt.Println("workflow-engine starting")

	cfg, err := config.FromFlags()
	if err != nil {
		log.Fatalf("error parsing flags: %s", err)
	}

	logFactory := logger.NewFactory(logger.ParseLevel(cfg.LogLevel))
	mainLog := logFactory("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stateStore, err := store.NewFileStore(cfg.WorkflowsDir, logFactory)
	if err != nil {
		log.Fatalf("error creating state store: %s", err)
	}

	jobQueue, err := queue.NewFileQueue(cfg.QueueStateFile, logFactory, queue.WithMaxQueueSize(cfg.QueueMaxSize))
	if err != nil {
		log.Fatalf("error creating job queue: %s", err)
	}

	registry := adapter.NewRegistry()
	adapter.RegisterFromEnvironment(registry, adapter.DefaultCredentialSpecs())
	mainLog.WithField("actions", registry.RegisteredActions()).Info("adapters registered from environment")

	// Recovery runs synchronously before anything else starts serving or
	// processing, so no worker or HTTP handler ever observes a workflow
	// left mid-step by a previous crash (spec §4.5).
	recoveryManager := recovery.New(stateStore, jobQueue, logFactory)
	report, err := recoveryManager.Run()
	if err != nil {
		log.Fatalf("error running startup recovery: %s", err)
	}
	mainLog.WithField("report", fmt.Sprintf("%+v", report)).Info("startup recovery complete")

	w := worker.New(stateStore, jobQueue, registry, logFactory, worker.WithConfig(worker.Config{
		EmptyQueueSleep:     cfg.EmptyQueueSleep,
		DependencyGateSleep: cfg.DependencyGateSleep,
		OuterLoopErrorSleep: worker.DefaultOuterLoopErrorSleep,
		MaxRedeliveries:     worker.DefaultMaxRedeliveries,
	}))
	workerService := lifecycle.NewService(ctx, logFactory("WorkerService"), func(ctx context.Context) {
		w.Run(ctx)
	})
	workerService.Start()
	defer workerService.Stop()

	templates := httpapi.NewTemplateRegistry()
	for _, t := range httpapi.DefaultTemplates() {
		if err := templates.Register(t); err != nil {
			log.Fatalf("error registering template: %s", err)
		}
	}
	engine := httpapi.NewEngine(stateStore, jobQueue, templates, logFactory)
	router := httpapi.NewRouter(
		httpapi.NewWorkflowAPI(engine, logFactory),
		httpapi.NewHealthAPI(logFactory),
		logFactory,
	)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	serverLog := logFactory("HTTPServer")
	go func() {
		serverLog.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLog.Errorf("error serving http: %v", err)
		}
	}()

	<-ctx.Done()
	mainLog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLog.Errorf("error during http server shutdown: %v", err)
	}
}
