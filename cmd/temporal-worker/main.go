// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	openagent "cfnloop/internal/agent"
	"cfnloop/internal/config"
	"cfnloop/internal/coordination"
	"cfnloop/internal/memory"
	"cfnloop/internal/notify"
	"cfnloop/internal/observer"
	"cfnloop/internal/opencode"
	"cfnloop/internal/telemetry"
	"cfnloop/internal/temporal"
	"cfnloop/pkg/agent"
	"cfnloop/pkg/epic"
	"cfnloop/pkg/executor"
	opencodeexec "cfnloop/pkg/executor/opencode"
	"cfnloop/pkg/executor/sandbox"
	"cfnloop/pkg/loop"
	"cfnloop/pkg/phase"
)

const taskQueue = "cfn-loop-task-queue"

func main() {
	log.Println("starting cfn-loop temporal worker")

	secret, err := config.RequireCoordinationSecret()
	if err != nil {
		log.Fatalln(err)
	}

	ctx := context.Background()

	tp, err := telemetry.NewTracerProvider(ctx, &telemetry.Config{
		ServiceName:  "cfn-loop-worker",
		CollectorURL: envOr("OTEL_COLLECTOR_URL", "localhost:4318"),
		Environment:  envOr("CFN_ENVIRONMENT", "development"),
		SamplingRate: 1.0,
	})
	if err != nil {
		log.Fatalln("unable to start tracer provider:", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Println("error shutting down tracer provider:", err)
		}
	}()

	tw, err := temporal.NewTemporalWorker(ctx, temporal.WorkerOptions{
		TaskQueue:     taskQueue,
		MaxConcurrent: envIntOr("CFN_WORKER_MAX_CONCURRENT", 10),
	})
	if err != nil {
		log.Fatalln("unable to create temporal worker:", err)
	}
	defer tw.Close()

	store := memory.NewInMemoryStore()

	bus, err := coordination.New(store, []byte(secret))
	if err != nil {
		log.Fatalln("unable to construct coordination bus:", err)
	}

	sink := telemetry.NewSlogSink(slog.Default())

	openExec, err := newOpenCodeExecutor(ctx)
	if err != nil {
		log.Fatalln("unable to construct opencode executor:", err)
	}
	primaryAdapter := opencodeexec.New(openExec)

	loopActivities := loop.NewActivities(primaryAdapter, selectValidatorExecutor(primaryAdapter), store, bus, sink, selectNotifier(), agent.NewManager(envOr("CFN_PROJECT_KEY", "cfn-loop")))
	epicActivities := epic.NewActivities(observer.NewWriterObserver(os.Stdout, nil))

	tw.RegisterWorkflow(epic.EpicWorkflow)
	tw.RegisterWorkflow(phase.PhaseWorkflow)
	tw.RegisterWorkflow(loop.SprintWorkflow)

	tw.RegisterActivity(loopActivities.ExecuteAgentTask)
	tw.RegisterActivity(loopActivities.ExecuteValidatorTask)
	tw.RegisterActivity(loopActivities.PersistLoopState)
	tw.RegisterActivity(loopActivities.PublishSignal)
	tw.RegisterActivity(loopActivities.AcknowledgeSignal)
	tw.RegisterActivity(loopActivities.RecordGlobalTimeout)
	tw.RegisterActivity(epicActivities.ReportEpicStatus)
	tw.RegisterActivity(epicActivities.ReportPhaseStatus)

	log.Println("registered cfn-loop workflows and activities on queue", taskQueue)

	if err := tw.Start(ctx); err != nil {
		log.Fatalln("unable to start worker:", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutdown signal received")
	if err := tw.Stop(ctx); err != nil {
		log.Println("error stopping worker:", err)
	}
	log.Println("worker stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// newOpenCodeExecutor builds the primary swarm's executor. With
// CFN_OPENCODE_SERVER_COUNT > 1 it leases a dedicated `opencode serve`
// instance per task from an opencode.ServerPool, so pkg/loop.RunAgentTasks'
// bounded-concurrency workers don't contend over a single port; with the
// default of 1 it falls back to one shared client, matching a single local
// `opencode serve` process.
func newOpenCodeExecutor(ctx context.Context) (*opencode.ExecutorImpl, error) {
	execConfig := opencode.ExecutorConfig{
		MaxTurns: envIntOr("OPENCODE_MAX_TURNS", 8),
		Timeout:  5 * time.Minute,
	}

	serverCount := envIntOr("CFN_OPENCODE_SERVER_COUNT", 1)
	if serverCount <= 1 {
		agentClient := openagent.NewClient(envOr("OPENCODE_BASE_URL", "http://localhost"), envIntOr("OPENCODE_PORT", 4096))
		return opencode.NewExecutor(agentClient, execConfig), nil
	}

	pool, err := opencode.NewServerPool(ctx, serverCount, envIntOr("CFN_OPENCODE_MIN_PORT", 8000), envIntOr("CFN_OPENCODE_MAX_PORT", 9000))
	if err != nil {
		return nil, err
	}
	return opencode.NewPooledExecutor(pool, execConfig), nil
}

// selectValidatorExecutor wires the validator swarm to a sandboxed Docker
// executor when CFN_SANDBOX_VALIDATOR_IMAGE names an image to run, falling
// back to the same OpenCode-backed executor the primary swarm uses
// otherwise. Both satisfy executor.ValidatorExecutor.
func selectValidatorExecutor(fallback executor.ValidatorExecutor) executor.ValidatorExecutor {
	image := os.Getenv("CFN_SANDBOX_VALIDATOR_IMAGE")
	if image == "" {
		return fallback
	}
	dm, err := sandbox.NewDockerManager()
	if err != nil {
		log.Println("unable to connect to docker, falling back to the opencode validator:", err)
		return fallback
	}
	return sandbox.New(dm, sandbox.Config{Image: image})
}

// selectNotifier wires agent-task failure notifications to an Agent Mail
// MCP server when AGENT_MAIL_BASE_URL is set, otherwise discards them.
func selectNotifier() notify.Notifier {
	baseURL := os.Getenv("AGENT_MAIL_BASE_URL")
	if baseURL == "" {
		return notify.NoOpNotifier{}
	}
	return notify.NewAgentMailNotifier(baseURL)
}
