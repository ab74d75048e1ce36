package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/betbot/core/config"
	"github.com/m3rciful/betbot/core/logger"
	"github.com/m3rciful/betbot/core/telegram/state"
	"log/slog"
)

// Downloader fetches file content from the Bot API. *tele.Bot satisfies it.
type Downloader interface {
	File(file *tele.File) (io.ReadCloser, error)
}

// Service stages uploaded evidence in the temp directory so the gateway can
// stream it as multipart. A saved file either gets cleaned up by the caller
// right away or is staged for its identity until the conversation that
// collected it finishes.
type Service struct {
	dir      string
	maxBytes atomic.Int64
	allowed  map[string]bool

	stagedMu sync.Mutex
	staged   map[state.Identity]string
}

func NewService(cfg coreconfig.FilesConfig) *Service {
	allowed := make(map[string]bool, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		allowed[strings.ToLower(ext)] = true
	}
	dir := cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	svc := &Service{
		dir:     dir,
		allowed: allowed,
		staged:  make(map[state.Identity]string),
	}
	svc.maxBytes.Store(int64(cfg.MaxSizeMB) << 20)
	return svc
}

// Stage parks a saved file for the identity until its conversation finishes.
// A file staged earlier for the same identity is replaced and removed.
func (s *Service) Stage(id state.Identity, path string) {
	s.stagedMu.Lock()
	prev := s.staged[id]
	s.staged[id] = path
	s.stagedMu.Unlock()
	if prev != "" && prev != path {
		_ = os.Remove(prev)
	}
}

// Discard removes the identity's staged file, if any. Safe to call when
// nothing is staged.
func (s *Service) Discard(id state.Identity) {
	s.stagedMu.Lock()
	path := s.staged[id]
	delete(s.staged, id)
	s.stagedMu.Unlock()
	if path != "" {
		_ = os.Remove(path)
	}
}

// CapBytes lowers the size limit to the server-advertised maximum. A zero or
// larger value leaves the local limit in place.
func (s *Service) CapBytes(n int64) {
	if n <= 0 {
		return
	}
	if cur := s.maxBytes.Load(); cur == 0 || n < cur {
		s.maxBytes.Store(n)
	}
}

// ErrTooLarge rejects evidence above the configured size limit.
var ErrTooLarge = fmt.Errorf("file exceeds the size limit")

// ErrBadExtension rejects evidence with a disallowed file extension.
var ErrBadExtension = fmt.Errorf("file extension not allowed")

// Save downloads one Telegram file to a uuid-named temp file and returns its
// path with a cleanup func. Cleanup is safe to call on every path, including
// after errors.
func (s *Service) Save(ctx context.Context, dl Downloader, file tele.File, name string) (string, func(), error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		// Telegram photos carry no filename; they are always JPEG.
		ext = ".jpg"
	}
	if len(s.allowed) > 0 && !s.allowed[ext] {
		return "", func() {}, ErrBadExtension
	}
	maxBytes := s.maxBytes.Load()
	if maxBytes > 0 && file.FileSize > maxBytes {
		return "", func() {}, ErrTooLarge
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("create temp dir: %w", err)
	}
	path := filepath.Join(s.dir, uuid.NewString()+ext)
	cleanup := func() { _ = os.Remove(path) }

	start := time.Now()
	reader, err := dl.File(&file)
	if err != nil {
		return "", cleanup, fmt.Errorf("download file: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(path)
	if err != nil {
		return "", cleanup, fmt.Errorf("create temp file: %w", err)
	}

	var written int64
	if maxBytes > 0 {
		written, err = io.Copy(out, io.LimitReader(reader, maxBytes+1))
	} else {
		written, err = io.Copy(out, reader)
	}
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", cleanup, fmt.Errorf("write temp file: %w", err)
	}
	if maxBytes > 0 && written > maxBytes {
		cleanup()
		return "", cleanup, ErrTooLarge
	}

	logger.SVCFiles.LogAttrs(ctx, slog.LevelDebug, "file.save",
		slog.String("status", "ok"),
		slog.Int64("bytes", written),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return path, cleanup, nil
}
