package capture

import (
	"context"
	"os/exec"
	"strconv"
)

// ffmpegBackend records through ffmpeg and encodes to ogg/opus on the fly,
// which keeps stored blobs an order of magnitude smaller than raw WAV.
type ffmpegBackend struct {
	inputFormat  string
	defaultInput string
}

func newFFMPEGLinuxBackend() Backend {
	return &ffmpegBackend{inputFormat: "pulse", defaultInput: "default"}
}

func newFFMPEGMacOSBackend() Backend {
	return &ffmpegBackend{inputFormat: "avfoundation", defaultInput: ":0"}
}

func (b *ffmpegBackend) Name() string {
	return "ffmpeg"
}

func (b *ffmpegBackend) Available() bool {
	return commandAvailable("ffmpeg")
}

func (b *ffmpegBackend) MimeType() string {
	return "audio/ogg;codecs=opus"
}

func (b *ffmpegBackend) Start(ctx context.Context, cfg Config) (Stream, error) {
	input := cfg.Input
	if input == "" {
		input = b.defaultInput
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", b.inputFormat,
		"-i", input,
		"-ac", strconv.Itoa(defaultChannels(cfg.Channels)),
		"-ar", strconv.Itoa(defaultSampleRate(cfg.SampleRate)),
		"-f", "ogg",
		"-c:a", "libopus",
		"pipe:1",
	}

	return startStream(exec.CommandContext(ctx, "ffmpeg", args...))
}

func (b *ffmpegBackend) ListDevices(ctx context.Context) (string, error) {
	if b.inputFormat == "avfoundation" {
		// ffmpeg prints the device list to stderr and exits non-zero.
		out, err := commandOutput(ctx, "ffmpeg", "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", "")
		if out != "" {
			return out, nil
		}
		if err != nil {
			return err.Error(), nil
		}
		return out, nil
	}
	return commandOutput(ctx, "pactl", "list", "short", "sources")
}
