package logx

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig mirrors lines at or above MinLevel to the Sink, at most
// RatePerSec per second.
type ChatConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

// Sink receives mirrored log lines.
type Sink interface {
	SendText(ctx context.Context, text string) error
}

// Service owns the outputs. Loggers it hands out pick up every Apply.
type Service struct {
	mu   sync.Mutex
	cfg  Config
	file *os.File
	chat *chatSink

	zl atomic.Pointer[zerolog.Logger]
}

func NewService(cfg Config) (*Service, Logger) {
	setGlobals()
	s := &Service{chat: newChatSink()}
	s.Apply(cfg)
	return s, s.Logger()
}

func (s *Service) current() zerolog.Logger {
	if p := s.zl.Load(); p != nil {
		return *p
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{src: s} }

// SetSink swaps the chat destination; nil disables mirroring.
func (s *Service) SetSink(sink Sink) { s.chat.setSink(sink) }

// Apply rebuilds the writers. A file that cannot be opened is reported on
// the remaining outputs and skipped.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		outs    []io.Writer
		fileErr error
	)
	if cfg.Console || (!cfg.File.Enabled && !cfg.Chat.Enabled) {
		outs = append(outs, newConsoleWriter(os.Stdout))
	}

	reopen := cfg.File != s.cfg.File || s.file == nil
	if reopen && s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	if cfg.File.Enabled && cfg.File.Path != "" {
		if reopen {
			s.file, fileErr = openLogFile(cfg.File.Path)
		}
		if s.file != nil {
			outs = append(outs, s.file)
		}
	}

	if cfg.Chat.Enabled {
		s.chat.apply(cfg.Chat)
		s.chat.start()
		outs = append(outs, s.chat)
	} else {
		s.chat.stop()
	}

	zl := build(zerolog.MultiLevelWriter(outs...), cfg.Level)
	s.zl.Store(&zl)
	s.cfg = cfg

	if fileErr != nil {
		zl.Warn().Err(fileErr).Str("path", cfg.File.Path).Msg("log file unavailable")
	}
}

// Close stops the chat mirror and closes the log file. Later lines go to
// the console only.
func (s *Service) Close() error {
	s.chat.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	zl := build(newConsoleWriter(os.Stdout), s.cfg.Level)
	s.zl.Store(&zl)
	err := s.file.Close()
	s.file = nil
	return err
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
