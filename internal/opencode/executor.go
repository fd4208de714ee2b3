// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package opencode wraps a running `opencode serve` instance behind a
// generic ExecuteRequest/ExecuteResponse shape, with no knowledge of
// cfntypes.AgentTask or the CFN consensus/confidence trailer format —
// pkg/executor/opencode.Adapter is the layer that translates a primary or
// validator AgentTask into an ExecuteRequest here and parses the CFN-specific
// CONFIDENCE/DECISION/REASON trailer back out of ExecuteResponse.Output.
package opencode

import (
	"context"
	"fmt"
	"time"

	"cfnloop/internal/agent"
)

// ExecutorConfig configures the OpenCode executor behavior
type ExecutorConfig struct {
	MaxTurns int           // Maximum number of turns in a conversation
	Timeout  time.Duration // Timeout for a single prompt execution
}

// ExecutorImpl wraps the OpenCode agent client with execution logic. Its
// SessionPool lets the same AgentID+TaskID combination (a sprint's primary
// agent re-entering Loop 3 with a feedback packet, or a validator called
// again next iteration) reuse one OpenCode session instead of starting a
// fresh one from zero context every call. When servers is non-nil, each
// Execute call leases a dedicated `opencode serve` instance from the
// ServerPool instead of sharing the single client every concurrent worker
// in pkg/loop.RunAgentTasks would otherwise contend over.
type ExecutorImpl struct {
	client  agent.ClientInterface
	config  ExecutorConfig
	pool    *SessionPool
	servers *ServerPool
}

// NewExecutor creates a new OpenCode executor backed by a fresh SessionPool
// sized from config.MaxTurns, talking to the single pre-configured client.
func NewExecutor(client agent.ClientInterface, config ExecutorConfig) *ExecutorImpl {
	if config.MaxTurns <= 0 {
		config.MaxTurns = 10 // Default max turns
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute // Default timeout
	}
	return &ExecutorImpl{
		client: client,
		config: config,
		pool:   NewSessionPool(config.Timeout, config.MaxTurns),
	}
}

// NewPooledExecutor creates an OpenCode executor that leases a dedicated
// server from servers for every Execute call instead of sharing one client,
// so pkg/loop.RunAgentTasks' bounded-concurrency workers each get their own
// `opencode serve` process and can't race each other's sessions on a single
// port.
func NewPooledExecutor(servers *ServerPool, config ExecutorConfig) *ExecutorImpl {
	if config.MaxTurns <= 0 {
		config.MaxTurns = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &ExecutorImpl{
		config:  config,
		pool:    NewSessionPool(config.Timeout, config.MaxTurns),
		servers: servers,
	}
}

// ExecuteRequest represents a task execution request
type ExecuteRequest struct {
	TaskID      string
	Description string
	Prompt      string
	SessionID   string // Optional: reuse existing session
}

// ExecuteResponse represents the result of task execution
type ExecuteResponse struct {
	Success       bool
	Output        string
	FilesModified []string
	Turns         int
	SessionID     string
	ErrorMessage  string
}

// Validate checks if the request is valid
func (r *ExecuteRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("TaskID is required")
	}
	if r.Prompt == "" {
		return fmt.Errorf("Prompt is required")
	}
	if len(r.Prompt) > 10000 {
		return fmt.Errorf("prompt exceeds maximum length of 10000 characters")
	}
	return nil
}

// Execute runs a task through the OpenCode agent
func (e *ExecutorImpl) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	// Validate request
	if err := req.Validate(); err != nil {
		return &ExecuteResponse{
			Success:      false,
			ErrorMessage: fmt.Sprintf("invalid request: %v", err),
		}, nil // Return as validation error, not execution error
	}

	// Create a timeout context if one isn't already set
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	client := e.client
	if e.servers != nil {
		server, err := e.servers.GetAvailableServer(ctx, req.TaskID)
		if err != nil {
			return &ExecuteResponse{
				Success:      false,
				ErrorMessage: fmt.Sprintf("no opencode server available: %v", err),
			}, nil
		}
		defer func() {
			_ = e.servers.ReleaseServer(server.ID)
		}()
		client = agent.NewClient(server.URL, server.Port)
	}

	// Track execution state
	turn := 0
	sessionID := req.SessionID
	var allOutput string
	var lastSessionID string

	reusedSession := false
	if sessionID == "" {
		if pooled, err := e.pool.GetOrCreateSessionForTask(ctx, req.TaskID, req.TaskID); err == nil && pooled != "" {
			sessionID = pooled
			reusedSession = true
		}
	}

	// Execute the prompt
	promptOpts := &agent.PromptOptions{
		Title:     fmt.Sprintf("Task: %s", req.TaskID),
		SessionID: sessionID,
		Agent:     "build",
	}

	turn++

	// Check turn limit before execution
	if turn > e.config.MaxTurns {
		return &ExecuteResponse{
			Success:      false,
			ErrorMessage: fmt.Sprintf("exceeded maximum turns (%d)", e.config.MaxTurns),
			Turns:        turn,
			SessionID:    lastSessionID,
		}, nil
	}

	result, err := client.ExecutePrompt(ctx, req.Prompt, promptOpts)
	if err != nil {
		return &ExecuteResponse{
			Success:      false,
			ErrorMessage: fmt.Sprintf("prompt execution failed: %v", err),
			Turns:        turn,
			SessionID:    lastSessionID,
		}, nil
	}

	lastSessionID = result.SessionID
	allOutput = result.GetText()

	if lastSessionID != "" {
		if reusedSession {
			_ = e.pool.RecordTurn(req.TaskID, req.TaskID)
		} else {
			_ = e.pool.RegisterSession(req.TaskID, req.TaskID, lastSessionID)
		}
	}

	// Get file modifications
	fileStatus, err := client.GetFileStatus(ctx)
	if err != nil {
		return &ExecuteResponse{
			Success:      false,
			ErrorMessage: fmt.Sprintf("failed to get file status: %v", err),
			Turns:        turn,
			SessionID:    lastSessionID,
		}, nil
	}

	filesModified := make([]string, 0)
	for _, file := range fileStatus {
		if file.Path != "" {
			filesModified = append(filesModified, file.Path)
		}
	}

	return &ExecuteResponse{
		Success:       true,
		Output:        allOutput,
		FilesModified: filesModified,
		Turns:         turn,
		SessionID:     lastSessionID,
	}, nil
}
