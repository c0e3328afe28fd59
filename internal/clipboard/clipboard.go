// Package clipboard places text on the system clipboard. The native clipboard
// is tried first when a graphical session is present; otherwise the text is
// sent to the controlling terminal as an OSC 52 escape sequence, which also
// works over SSH and inside tmux.
package clipboard

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	sysclip "github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"

	"github.com/ppiankov/tokendesk/internal/model"
)

// Copy modes.
const (
	ModeAuto   = "auto"
	ModeNative = "native"
	ModeOSC52  = "osc52"
)

// Copier is anything that can place text on a clipboard.
type Copier interface {
	Copy(text string) error
}

// nativeTimeout bounds a native copy; a helper that never returns is treated
// as a failure and the OSC 52 fallback is tried.
const nativeTimeout = 3 * time.Second

// Service copies text using the first mechanism that works.
type Service struct {
	mode string

	goos        string
	getenv      func(string) string
	writeNative func(string) error
	timeout     time.Duration
	openTTY     func() (io.WriteCloser, error)
}

// New returns a Service for mode. An empty mode means ModeAuto.
func New(mode string) (*Service, error) {
	switch mode {
	case "":
		mode = ModeAuto
	case ModeAuto, ModeNative, ModeOSC52:
	default:
		return nil, fmt.Errorf("unknown clipboard mode %q (want auto, native or osc52)", mode)
	}
	return &Service{
		mode:        mode,
		goos:        runtime.GOOS,
		getenv:      os.Getenv,
		writeNative: writeSystem,
		timeout:     nativeTimeout,
		openTTY:     openControllingTTY,
	}, nil
}

// Mode returns the configured mode.
func (s *Service) Mode() string { return s.mode }

// Copy places text on the clipboard. It returns a capability error when no
// mechanism accepted the text.
func (s *Service) Copy(text string) error {
	var errs []error

	if s.mode != ModeOSC52 && s.graphical() {
		err := s.copyNative(text)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if s.mode != ModeNative {
		err := s.copyOSC52(text)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no graphical session for native copy"))
	}
	return model.Wrap(model.KindCapability, "copy", errors.Join(errs...))
}

func (s *Service) graphical() bool {
	switch s.goos {
	case "darwin", "windows":
		return true
	}
	return s.getenv("WAYLAND_DISPLAY") != "" || s.getenv("DISPLAY") != ""
}

func (s *Service) copyNative(text string) error {
	done := make(chan error, 1)
	go func() { done <- s.writeNative(text) }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("native: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("native: clipboard helper did not finish within %s", s.timeout)
	}
}

func (s *Service) copyOSC52(text string) error {
	tty, err := s.openTTY()
	if err != nil {
		return fmt.Errorf("osc52: %w", err)
	}
	defer tty.Close()

	seq := osc52.New(text)
	term := s.getenv("TERM")
	switch {
	case s.getenv("TMUX") != "" || strings.HasPrefix(term, "tmux"):
		seq = seq.Tmux()
	case strings.HasPrefix(term, "screen"):
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(tty); err != nil {
		return fmt.Errorf("osc52: %w", err)
	}
	return nil
}

func writeSystem(text string) error {
	if sysclip.Unsupported {
		return errors.New("no native clipboard tool found")
	}
	return sysclip.WriteAll(text)
}

func openControllingTTY() (io.WriteCloser, error) {
	return os.OpenFile("/dev/tty", os.O_WRONLY, 0)
}
