// Package audit copies audit log entries to destinations outside the database. The
// audit_logs table stays the record of truth that the back office queries; sinks exist
// for security teams whose SIEM or log aggregator has its own retention rules.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/event-registry/event-registry/internal/config"
	"github.com/event-registry/event-registry/internal/db/models"
)

// Sink receives a copy of every stored audit entry.
type Sink interface {
	Ship(ctx context.Context, entry *models.AuditLog) error
	Close() error
}

// Store persists audit entries.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes entries to the store and then to every sink. It satisfies
// middleware.AuditWriter.
type Recorder struct {
	store Store
	sinks []Sink
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, sinks ...Sink) *Recorder {
	return &Recorder{store: store, sinks: sinks}
}

// CreateAuditLog stores entry and ships it. A sink failure is logged and never fails the
// call; only the database write is authoritative.
func (r *Recorder) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return err
	}
	for _, s := range r.sinks {
		if err := s.Ship(ctx, entry); err != nil {
			slog.Warn("audit sink failed", "action", entry.Action, "error", err)
		}
	}
	return nil
}

// Close closes every sink and returns the last error.
func (r *Recorder) Close() error {
	var lastErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NewSinks builds the sinks named in cfgs.
func NewSinks(cfgs []config.AuditSinkConfig) ([]Sink, error) {
	sinks := make([]Sink, 0, len(cfgs))
	for i, cfg := range cfgs {
		var (
			s   Sink
			err error
		)
		switch cfg.Type {
		case "file":
			s, err = NewFileSink(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups)
		case "webhook":
			s, err = NewWebhookSink(cfg.URL, cfg.Headers, cfg.Timeout)
		default:
			err = fmt.Errorf("unknown sink type %q", cfg.Type)
		}
		if err != nil {
			for _, built := range sinks {
				_ = built.Close()
			}
			return nil, fmt.Errorf("audit sink %d: %w", i, err)
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// WebhookSink POSTs each entry as JSON.
type WebhookSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookSink creates a WebhookSink. A zero timeout means 10 seconds.
func NewWebhookSink(url string, headers map[string]string, timeout time.Duration) (*WebhookSink, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Ship sends entry to the webhook.
func (ws *WebhookSink) Ship(ctx context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op.
func (ws *WebhookSink) Close() error { return nil }

// FileSink appends entries to a JSON-lines file with size-based rotation.
type FileSink struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (or creates) path for appending. maxSizeMB of 0 disables rotation.
func NewFileSink(path string, maxSizeMB, maxBackups int) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &FileSink{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		file:       f,
	}, nil
}

func openAppend(path string) (*os.File, error) {
	// #nosec G304 -- operator-configured path
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return f, nil
}

// Ship writes entry as one line.
func (fs *FileSink) Ship(_ context.Context, entry *models.AuditLog) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.maxBytes > 0 {
		if info, err := fs.file.Stat(); err == nil && info.Size()+int64(len(data))+1 > fs.maxBytes {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens path.
// Backups beyond maxBackups are removed.
func (fs *FileSink) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.maxBackups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", fs.path, i), fmt.Sprintf("%s.%d", fs.path, i+1))
	}
	if fs.maxBackups > 0 {
		_ = os.Rename(fs.path, fs.path+".1")
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.path, fs.maxBackups+1))
	} else {
		_ = os.Remove(fs.path)
	}

	f, err := openAppend(fs.path)
	if err != nil {
		return err
	}
	fs.file = f
	return nil
}

// Close closes the file.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
