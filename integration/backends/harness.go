//go:build integration

package backends

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

const defaultTimeout = 5 * time.Minute

// Harness runs backend containers with the docker CLI
type Harness struct {
	t          *testing.T
	containers []string
	keepOnFail bool
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{
		t:          t,
		keepOnFail: os.Getenv("INTEGRATION_KEEP_CONTAINER") == "1",
	}
}

// Run starts a detached container publishing port on a random loopback port
// and returns the host address
func (h *Harness) Run(ctx context.Context, image, port string, env map[string]string, args ...string) (string, error) {
	h.t.Helper()
	h.t.Logf("Starting container %s", image)

	runArgs := []string{"run", "-d", "--rm", "-p", "127.0.0.1::" + port}
	for k, v := range env {
		runArgs = append(runArgs, "-e", k+"="+v)
	}
	runArgs = append(runArgs, image)
	runArgs = append(runArgs, args...)

	cmd := exec.CommandContext(ctx, "docker", runArgs...)
	cmd.Stderr = &testWriter{t: h.t, prefix: "[run] "}
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("docker run %s: %w", image, err)
	}
	id := strings.TrimSpace(string(out))
	h.containers = append(h.containers, id)

	var stdout bytes.Buffer
	portCmd := exec.CommandContext(ctx, "docker", "port", id, port+"/tcp")
	portCmd.Stdout = &stdout
	if err := portCmd.Run(); err != nil {
		return "", fmt.Errorf("docker port %s: %w", id, err)
	}

	// docker port may list an IPv6 binding as well
	addr := strings.TrimSpace(strings.SplitN(stdout.String(), "\n", 2)[0])
	h.t.Logf("Container %s listening on %s", id[:12], addr)
	return addr, nil
}

// WaitForTCP blocks until addr accepts connections
func (h *Harness) WaitForTCP(ctx context.Context, addr string) error {
	h.t.Helper()
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", addr, ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Cleanup stops every started container
func (h *Harness) Cleanup(ctx context.Context) {
	h.t.Helper()
	if h.keepOnFail && h.t.Failed() {
		h.t.Logf("Test failed and INTEGRATION_KEEP_CONTAINER=1, keeping containers %v", h.containers)
		return
	}

	for _, id := range h.containers {
		h.t.Logf("Stopping container %s", id[:12])
		if err := exec.CommandContext(ctx, "docker", "stop", id).Run(); err != nil {
			h.t.Logf("Warning: failed to stop container: %v", err)
		}
	}
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
