package capture

import (
	"context"
	"os/exec"
	"strconv"
)

type alsaBackend struct{}

func newALSABackend() Backend {
	return &alsaBackend{}
}

func (b *alsaBackend) Name() string {
	return "arecord"
}

func (b *alsaBackend) Available() bool {
	return commandAvailable("arecord")
}

func (b *alsaBackend) MimeType() string {
	return "audio/wav"
}

func (b *alsaBackend) Start(ctx context.Context, cfg Config) (Stream, error) {
	args := []string{
		"-t", "wav",
		"-f", "S16_LE",
		"-r", strconv.Itoa(defaultSampleRate(cfg.SampleRate)),
		"-c", strconv.Itoa(defaultChannels(cfg.Channels)),
	}
	if cfg.Input != "" {
		args = append(args, "-D", cfg.Input)
	}

	// No output file argument: arecord streams the WAV to stdout.
	return startStream(exec.CommandContext(ctx, "arecord", args...))
}

func (b *alsaBackend) ListDevices(ctx context.Context) (string, error) {
	return commandOutput(ctx, "arecord", "-L")
}
