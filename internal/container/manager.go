// File: internal/container/manager.go
// Package container manages the isolated execution environment for the
// container-backed actuation adapter: a uniquely named Docker container
// running a virtual display, input-simulation utilities, and a browser.
package container

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/argoseyes/uxprobe/internal/config"
)

// readinessPollInterval is how often the display-readiness probe retries.
const readinessPollInterval = 2 * time.Second

// DockerClient is the subset of the Docker API the manager needs. Narrowed
// so tests can drive the manager with a fake.
type DockerClient interface {
	ContainerCreate(ctx context.Context, config *dockercontainer.Config, hostConfig *dockercontainer.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (dockercontainer.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options dockercontainer.StartOptions) error
	ContainerExecCreate(ctx context.Context, container string, options dockercontainer.ExecOptions) (dockercontainer.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options dockercontainer.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (dockercontainer.ExecInspect, error)
	ContainerInspect(ctx context.Context, containerID string) (dockercontainer.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options dockercontainer.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options dockercontainer.RemoveOptions) error
	ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]dockercontainer.Summary, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options dockercontainer.CopyToContainerOptions) error
}

// Manager owns the lifecycle of one execution environment. Bound to a single
// run; never shared or reused.
type Manager struct {
	cli     DockerClient
	cfg     config.ContainerConfig
	display config.DisplayConfig
	logger  *zap.Logger

	containerID string
	name        string
}

// NewManager builds a Manager for one run. runID feeds the unique container
// name.
func NewManager(cli DockerClient, cfg config.ContainerConfig, display config.DisplayConfig, runID string, logger *zap.Logger) *Manager {
	return &Manager{
		cli:     cli,
		cfg:     cfg,
		display: display,
		logger:  logger.Named("container"),
		name:    cfg.NamePrefix + runID,
	}
}

// Name returns the environment's container name.
func (m *Manager) Name() string { return m.name }

// Initialize creates and starts the environment, runs the provisioning
// sequence, and confirms the virtual display is accepting connections.
// Individual provisioning step failures are logged and tolerated; some steps
// are idempotent-but-noisy on repeated runs. Only the final readiness check
// is load-bearing.
func (m *Manager) Initialize(ctx context.Context) error {
	created, err := m.cli.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image: m.cfg.Image,
			Cmd:   []string{"sleep", "infinity"},
			Labels: map[string]string{
				"managed-by": "uxprobe",
			},
		},
		&dockercontainer.HostConfig{
			ShmSize: 2 * 1024 * 1024 * 1024,
		},
		nil, nil, m.name)
	if err != nil {
		return fmt.Errorf("container create failed: %w", err)
	}
	m.containerID = created.ID

	if err := m.cli.ContainerStart(ctx, m.containerID, dockercontainer.StartOptions{}); err != nil {
		return fmt.Errorf("container start failed: %w", err)
	}
	m.logger.Info("Environment started", zap.String("name", m.name), zap.String("id", m.containerID))

	for _, step := range m.provisioningSteps() {
		if _, err := m.Exec(ctx, step); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("Provisioning step failed, continuing", zap.String("step", step), zap.Error(err))
		}
	}

	if err := m.awaitDisplayReady(ctx); err != nil {
		return fmt.Errorf("virtual display never became ready: %w", err)
	}
	m.logger.Info("Environment provisioned and display ready", zap.String("name", m.name))
	return nil
}

// provisioningSteps returns the setup command sequence: package install,
// virtual display server, browser.
func (m *Manager) provisioningSteps() []string {
	geometry := fmt.Sprintf("%dx%dx24", m.display.Width, m.display.Height)
	display := fmt.Sprintf(":%d", m.display.Number)
	return []string{
		"apt-get update -qq",
		"DEBIAN_FRONTEND=noninteractive apt-get install -y -qq xvfb x11-utils xdotool scrot firefox-esr",
		fmt.Sprintf("nohup Xvfb %s -screen 0 %s >/dev/null 2>&1 & sleep 1", display, geometry),
		fmt.Sprintf("nohup firefox-esr --display=%s >/dev/null 2>&1 & sleep 2", display),
	}
}

// awaitDisplayReady polls the display server until it answers or the bounded
// retry window closes.
func (m *Manager) awaitDisplayReady(ctx context.Context) error {
	timeout := m.cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)
	probe := fmt.Sprintf("xdpyinfo -display :%d >/dev/null 2>&1", m.display.Number)

	var lastErr error
	for time.Now().Before(deadline) {
		if _, err := m.Exec(ctx, probe); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readinessPollInterval):
		}
	}
	return fmt.Errorf("readiness window of %s elapsed: %w", timeout, lastErr)
}

// Exec runs a shell command inside the environment and returns its stdout.
// The environment's combined output stream interleaves stdout and stderr
// with a framing byte; stdcopy demultiplexes it into clean text. A hard
// per-call timeout applies independently of any caller deadline.
func (m *Manager) Exec(ctx context.Context, command string) (string, error) {
	if m.containerID == "" {
		return "", fmt.Errorf("environment is not running")
	}

	timeout := m.cfg.CommandTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	created, err := m.cli.ContainerExecCreate(execCtx, m.containerID, dockercontainer.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		Env:          []string{fmt.Sprintf("DISPLAY=:%d", m.display.Number), "HOME=/root"},
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create failed: %w", err)
	}

	attach, err := m.cli.ContainerExecAttach(execCtx, created.ID, dockercontainer.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach failed: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &CommandTimeoutError{Command: command, Timeout: timeout.String()}
	case copyErr := <-copyDone:
		if copyErr != nil {
			return "", fmt.Errorf("demultiplexing output failed: %w", copyErr)
		}
	}

	inspect, err := m.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return "", fmt.Errorf("exec inspect failed: %w", err)
	}
	if inspect.ExitCode != 0 {
		return "", &CommandError{Command: command, ExitCode: inspect.ExitCode, Stderr: strings.TrimSpace(stderr.String())}
	}
	return stdout.String(), nil
}

// GetFile retrieves a file's bytes as a base64 string by running an
// in-environment encode command. The archive transfer path exists for
// injection but is deliberately not the retrieval mechanism.
func (m *Manager) GetFile(ctx context.Context, path string) (string, error) {
	if m.containerID == "" {
		return "", &FileTransferError{Path: path, Err: fmt.Errorf("environment is not running")}
	}
	out, err := m.Exec(ctx, fmt.Sprintf("base64 -w0 %s", ShellQuote(path)))
	if err != nil {
		return "", &FileTransferError{Path: path, Err: err}
	}
	encoded := strings.TrimSpace(out)
	if encoded == "" {
		return "", &FileTransferError{Path: path, Err: fmt.Errorf("file is empty or unreadable")}
	}
	return encoded, nil
}

// PutFile packages a local file into a tar stream and injects it into the
// environment at the directory of remotePath.
func (m *Manager) PutFile(ctx context.Context, localPath, remotePath string) error {
	if m.containerID == "" {
		return &FileTransferError{Path: remotePath, Err: fmt.Errorf("environment is not running")}
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return &FileTransferError{Path: localPath, Err: err}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filepath.Base(remotePath),
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return &FileTransferError{Path: remotePath, Err: fmt.Errorf("tar header: %w", err)}
	}
	if _, err := tw.Write(data); err != nil {
		return &FileTransferError{Path: remotePath, Err: fmt.Errorf("tar body: %w", err)}
	}
	if err := tw.Close(); err != nil {
		return &FileTransferError{Path: remotePath, Err: fmt.Errorf("tar close: %w", err)}
	}

	dst := filepath.Dir(remotePath)
	if err := m.cli.CopyToContainer(ctx, m.containerID, dst, &buf, dockercontainer.CopyToContainerOptions{}); err != nil {
		return &FileTransferError{Path: remotePath, Err: err}
	}
	return nil
}

// IsRunning is a best-effort liveness probe. Returns false, never an error,
// on any inspection failure.
func (m *Manager) IsRunning(ctx context.Context) bool {
	if m.containerID == "" {
		return false
	}
	inspect, err := m.cli.ContainerInspect(ctx, m.containerID)
	if err != nil || inspect.State == nil {
		return false
	}
	return inspect.State.Running
}

// Cleanup stops then force-removes the environment. Both steps are
// individually fault-tolerant, and the internal handle is nulled afterward so
// repeated calls are safe no-ops.
func (m *Manager) Cleanup(ctx context.Context) {
	if m.containerID == "" {
		return
	}
	id := m.containerID
	m.containerID = ""

	stopTimeout := 5
	if err := m.cli.ContainerStop(ctx, id, dockercontainer.StopOptions{Timeout: &stopTimeout}); err != nil {
		m.logger.Warn("Failed to stop environment, attempting removal anyway", zap.String("id", id), zap.Error(err))
	}
	if err := m.cli.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true}); err != nil {
		m.logger.Warn("Failed to remove environment", zap.String("id", id), zap.Error(err))
		return
	}
	m.logger.Info("Environment removed", zap.String("name", m.name))
}

// SweepOrphans force-removes environments left over from prior crashed runs,
// identified by the name-prefix convention. Best-effort hygiene: failures are
// logged, never returned.
func SweepOrphans(ctx context.Context, cli DockerClient, prefix string, logger *zap.Logger) {
	log := logger.Named("container_sweep")

	list, err := cli.ContainerList(ctx, dockercontainer.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", prefix)),
	})
	if err != nil {
		log.Warn("Orphan sweep could not list environments", zap.Error(err))
		return
	}

	for _, summary := range list {
		matched := false
		for _, name := range summary.Names {
			if strings.HasPrefix(strings.TrimPrefix(name, "/"), prefix) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if err := cli.ContainerRemove(ctx, summary.ID, dockercontainer.RemoveOptions{Force: true}); err != nil {
			log.Warn("Failed to remove orphaned environment", zap.String("id", summary.ID), zap.Error(err))
			continue
		}
		log.Info("Removed orphaned environment", zap.String("id", summary.ID), zap.Strings("names", summary.Names))
	}
}
