// Package clipboard bridges the shared X clipboard through xclip so
// operators can paste credentials into a browser session without typing
// them over VNC.
package clipboard

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/shared/types"
)

// DefaultTimeout bounds each xclip invocation. xclip blocks forever when
// no X selection owner responds, so every call runs under a deadline.
const DefaultTimeout = 3 * time.Second

// Provider reads and writes the clipboard of one X display.
type Provider struct {
	binary  string
	display string
	timeout time.Duration
	logger  *logging.Logger
}

// New creates a provider for the given display (e.g. ":1").
func New(display string, logger *logging.Logger) *Provider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Provider{
		binary:  "xclip",
		display: display,
		timeout: DefaultTimeout,
		logger:  logger,
	}
}

// Read returns the current clipboard text. An empty or non-text
// selection reads as the empty string rather than an error; xclip exits
// non-zero for both and the distinction is useless to an operator.
func (p *Provider) Read(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, "-selection", "clipboard", "-o")
	cmd.Env = append(os.Environ(), "DISPLAY="+p.display)
	// Don't let an inherited pipe held by a child of xclip stall Run
	// past the deadline.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", &types.ProcessError{Op: "clipboard_read", Err: fmt.Errorf("xclip timed out on display %s", p.display)}
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "Error: target STRING not available") || msg == "" {
			return "", nil
		}
		return "", &types.ProcessError{Op: "clipboard_read", Err: fmt.Errorf("%s: %w", msg, err)}
	}
	return stdout.String(), nil
}

// Write replaces the clipboard content with text.
func (p *Provider) Write(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, "-selection", "clipboard")
	cmd.Env = append(os.Environ(), "DISPLAY="+p.display)
	cmd.WaitDelay = time.Second
	cmd.Stdin = strings.NewReader(text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &types.ProcessError{Op: "clipboard_write", Err: fmt.Errorf("xclip timed out on display %s", p.display)}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &types.ProcessError{Op: "clipboard_write", Err: fmt.Errorf("%s", msg)}
	}

	p.logger.Debug("clipboard updated",
		zap.String("display", p.display),
		zap.Int("bytes", len(text)),
	)
	return nil
}
