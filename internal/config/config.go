// Package config loads the execution core's runtime configuration from
// command-line flags, grounded on runner/app.ConfigFromFlags's
// flag-then-derive shape.
package config

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/buildbeaver/workflow-engine/internal/logger"
)

const (
	DefaultWorkflowsDir     = "./data/workflows"
	DefaultQueueStateFile   = "./data/queue.json"
	DefaultMaxParallelNodes = 4
	DefaultHTTPAddr         = ":8080"
	DefaultQueueMaxSize     = 10000
	DefaultEmptyQueueSleep  = time.Second
	DefaultDependencyGateMs = 2 * time.Second
)

// Config is the execution core's process-wide configuration (spec §6, §9).
type Config struct {
	WorkflowsDir        string
	QueueStateFile      string
	QueueMaxSize        int
	MaxParallelNodes    int
	HTTPAddr            string
	LogLevel            string
	EmptyQueueSleep     time.Duration
	DependencyGateSleep time.Duration
}

// FromFlags parses process flags and environment variables into a Config.
// Flags take the WORKFLOWS_DIR-style env var as their default so either
// source works in a container (spec's AMBIENT STACK: 12-factor config).
func FromFlags() (*Config, error) {
	cfg := &Config{}

	flag.StringVar(&cfg.WorkflowsDir, "workflows-dir", envOrDefault("WORKFLOWS_DIR", DefaultWorkflowsDir),
		"Root directory holding one state.json per workflow.")
	flag.StringVar(&cfg.QueueStateFile, "queue-state-file", envOrDefault("QUEUE_STATE_FILE", DefaultQueueStateFile),
		"Path to the durable job queue file.")
	flag.IntVar(&cfg.QueueMaxSize, "queue-max-size", envIntOrDefault("QUEUE_MAX_SIZE", DefaultQueueMaxSize),
		"Maximum number of pending tickets the queue will hold before Add returns an error.")
	flag.IntVar(&cfg.MaxParallelNodes, "max-parallel-nodes", envIntOrDefault("MAX_PARALLEL_NODES", DefaultMaxParallelNodes),
		"Reserved; validated as positive but not read by the worker, which runs one step at a time.")
	flag.StringVar(&cfg.HTTPAddr, "http-addr", envOrDefault("HTTP_ADDR", DefaultHTTPAddr),
		"Address the HTTP edge listens on.")
	flag.StringVar(&cfg.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"),
		fmt.Sprintf("Minimum log level: one of %v.", logger.ValidLevelNames()))
	flag.DurationVar(&cfg.EmptyQueueSleep, "empty-queue-sleep", DefaultEmptyQueueSleep,
		"How long the worker sleeps after finding the queue empty.")
	flag.DurationVar(&cfg.DependencyGateSleep, "dependency-gate-sleep", DefaultDependencyGateMs,
		"How long the worker sleeps after deferring a ticket whose dependencies aren't satisfied.")
	flag.Parse()

	if cfg.MaxParallelNodes <= 0 {
		return nil, fmt.Errorf("error max-parallel-nodes must be positive, got %d", cfg.MaxParallelNodes)
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}
