package capture

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
)

type pipewireBackend struct{}

func newPipeWireBackend() Backend {
	return &pipewireBackend{}
}

func (b *pipewireBackend) Name() string {
	return "pw-record"
}

func (b *pipewireBackend) Available() bool {
	return commandAvailable("pw-record")
}

func (b *pipewireBackend) MimeType() string {
	return "audio/wav"
}

func (b *pipewireBackend) Start(ctx context.Context, cfg Config) (Stream, error) {
	args := []string{
		"--rate", strconv.Itoa(defaultSampleRate(cfg.SampleRate)),
		"--channels", strconv.Itoa(defaultChannels(cfg.Channels)),
		"--format", "s16",
	}
	if cfg.Input != "" {
		args = append(args, "--target", cfg.Input)
	}
	args = append(args, "-")

	return startStream(exec.CommandContext(ctx, "pw-record", args...))
}

func (b *pipewireBackend) ListDevices(ctx context.Context) (string, error) {
	if commandAvailable("pw-cli") {
		return commandOutput(ctx, "pw-cli", "ls", "Node")
	}

	if out, err := commandOutput(ctx, "pw-record", "--list-targets"); err == nil {
		return out, nil
	}

	if commandAvailable("pactl") {
		return commandOutput(ctx, "pactl", "list", "short", "sources")
	}

	return "", errors.New("no pipewire device listing command available")
}
