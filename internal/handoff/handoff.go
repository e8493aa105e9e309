// Package handoff opens the transcript in a user-configured target
// application. It is strictly best-effort: failures are reported but never
// block the transcription flow.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

var ErrNoTarget = errors.New("no handoff target configured")

const openTimeout = 5 * time.Second

// Send hands the text to the target. A target containing "://" is treated
// as a URI template and receives the text as a query-escaped suffix;
// anything else is treated as an application name to open.
func Send(ctx context.Context, target, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return ErrNoTarget
	}

	if ctx == nil {
		ctx = context.Background()
	}
	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	name, args, err := openCommand(target, text)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(openCtx, name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("open handoff target %q: %w", target, err)
	}
	return nil
}

func openCommand(target, text string) (string, []string, error) {
	arg := target
	if strings.Contains(target, "://") {
		arg = target + url.QueryEscape(text)
	}

	switch runtime.GOOS {
	case "darwin":
		if strings.Contains(target, "://") {
			return "open", []string{arg}, nil
		}
		return "open", []string{"-a", arg}, nil
	case "linux":
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return "", nil, fmt.Errorf("xdg-open not found: %w", err)
		}
		return "xdg-open", []string{arg}, nil
	default:
		return "", nil, fmt.Errorf("handoff unsupported on %s", runtime.GOOS)
	}
}
