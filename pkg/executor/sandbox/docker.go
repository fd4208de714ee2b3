// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package sandbox runs validator-swarm tasks inside a throwaway Docker
// container instead of the host process, so a buggy or adversarial
// validation script can't touch the orchestrator's own filesystem.
//
// Each validator run gets a one-shot container whose lifecycle is create,
// start, wait, collect logs, then stop and remove, tolerating an
// already-gone container as success.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const stopTimeout = 10 * time.Second

// DockerManager owns one Docker client connection and the containers it
// creates on its behalf.
type DockerManager struct {
	client *client.Client
}

// NewDockerManager connects to the Docker daemon using the ambient
// environment (DOCKER_HOST and friends), negotiating the API version.
func NewDockerManager() (*DockerManager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create docker client: %w", err)
	}
	return &DockerManager{client: cli}, nil
}

// Close closes the underlying Docker client connection.
func (dm *DockerManager) Close() error {
	if dm.client == nil {
		return nil
	}
	return dm.client.Close()
}

// RunResult is the outcome of running one command to completion in a
// sandboxed container.
type RunResult struct {
	ExitCode int64
	Output   string
}

// Run creates a container from image running cmd, waits for it to exit,
// collects its combined output, and always removes the container
// afterward — success or failure. The container is always removed, even
// when Run itself returns an error, so a validator crash never leaks a
// container.
func (dm *DockerManager) Run(ctx context.Context, image string, cmd []string) (RunResult, error) {
	created, err := dm.client.ContainerCreate(ctx,
		&container.Config{
			Image:      image,
			Cmd:        cmd,
			Tty:        true,
			AttachStdout: true,
			AttachStderr: true,
		},
		&container.HostConfig{AutoRemove: false},
		nil, nil, "",
	)
	if err != nil {
		return RunResult{}, fmt.Errorf("sandbox: create container: %w", err)
	}

	defer dm.stopAndRemove(context.Background(), created.ID)

	if err := dm.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return RunResult{}, fmt.Errorf("sandbox: start container %s: %w", created.ID, err)
	}

	statusCh, errCh := dm.client.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{}, fmt.Errorf("sandbox: wait for container %s: %w", created.ID, err)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := dm.client.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return RunResult{}, fmt.Errorf("sandbox: collect logs for container %s: %w", created.ID, err)
	}
	defer logs.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, logs); err != nil && err != io.EOF {
		return RunResult{}, fmt.Errorf("sandbox: read logs for container %s: %w", created.ID, err)
	}

	return RunResult{ExitCode: exitCode, Output: buf.String()}, nil
}

// stopAndRemove stops and force-removes a container, tolerating one that is
// already stopped or already gone, so calling it more than once is harmless.
func (dm *DockerManager) stopAndRemove(ctx context.Context, containerID string) {
	if containerID == "" {
		return
	}
	timeout := int(stopTimeout.Seconds())
	_ = dm.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	_ = dm.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}
