package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/spf13/afero"

	"assistant-wake-recorder/app_errors"
)

const DefaultPlayer = "paplay"

// Runner starts a process without waiting for it to finish.
type Runner func(ctx context.Context, name string, args ...string) error

type commandImpl struct {
	fileSys      afero.Fs
	player       string
	soundStart   string
	soundEnd     string
	outputDevice string
	run          Runner
}

type Config struct {
	FileSys      afero.Fs
	Player       string
	SoundStart   string
	SoundEnd     string
	OutputDevice string
	// Runner defaults to StartProcess.
	Runner Runner
}

func New(cfg *Config) (Interface, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.FileSys == nil {
		return nil, fmt.Errorf("fileSys is nil")
	}

	player := cfg.Player
	if player == "" {
		player = DefaultPlayer
	}

	run := cfg.Runner
	if run == nil {
		run = StartProcess
	}

	return &commandImpl{
		fileSys:      cfg.FileSys,
		player:       player,
		soundStart:   cfg.SoundStart,
		soundEnd:     cfg.SoundEnd,
		outputDevice: cfg.OutputDevice,
		run:          run,
	}, nil
}

func (n *commandImpl) NotifyStart(ctx context.Context) error {
	slog.Info("start listening")

	return n.play(ctx, n.soundStart)
}

func (n *commandImpl) NotifyEnd(ctx context.Context) error {
	slog.Info("stop listening")

	return n.play(ctx, n.soundEnd)
}

func (n *commandImpl) play(ctx context.Context, sound string) error {
	if sound == "" {
		return nil
	}

	if _, err := n.fileSys.Stat(sound); err != nil {
		return app_errors.Playback("find sound", err)
	}

	args := []string{sound}
	if n.outputDevice != "" {
		args = append(args, "--device="+n.outputDevice)
	}

	slog.Debug("playing sound", "player", n.player, "args", args)

	if err := n.run(ctx, n.player, args...); err != nil {
		return app_errors.Playback("start player", err)
	}

	return nil
}

// StartProcess starts the command and reaps it in the background. The exit
// status is only logged.
func StartProcess(_ context.Context, name string, args ...string) error {
	// not bound to the caller's context: a cue may outlive the frame that
	// triggered it
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}

	go func() {
		if err := cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				slog.Warn("sound player exited with error", "player", name, "code", exitErr.ExitCode())
				return
			}
			slog.Warn("sound player failed", "player", name, "error", err)
		}
	}()

	return nil
}
