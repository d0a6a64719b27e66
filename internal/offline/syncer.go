package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"
)

// Syncer replays queued submissions against the report endpoint. Each
// entry is independent: one failure never blocks the others, and an
// entry is deleted only after the server accepted it.
type Syncer struct {
	queue    *Queue
	endpoint string
	client   *http.Client
	token    func() string
	logf     func(format string, args ...any)
}

// SyncerOptions configures a Syncer. Token is consulted per request so
// a refreshed session is picked up without rebuilding the syncer.
type SyncerOptions struct {
	Endpoint string
	Client   *http.Client
	Token    func() string
	Logf     func(format string, args ...any)
}

func NewSyncer(queue *Queue, opts SyncerOptions) *Syncer {
	s := &Syncer{
		queue:    queue,
		endpoint: opts.Endpoint,
		client:   opts.Client,
		token:    opts.Token,
		logf:     opts.Logf,
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if s.token == nil {
		s.token = func() string { return "" }
	}
	if s.logf == nil {
		s.logf = log.Printf
	}
	return s
}

// Sync reads the full queue and replays every entry once, deleting the
// ones the server accepted. It returns how many entries were delivered;
// a queue read failure aborts the whole run.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	entries, err := s.queue.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("read offline queue: %w", err)
	}

	delivered := 0
	for _, entry := range entries {
		if err := s.replay(ctx, entry); err != nil {
			// Keep the entry for the next run.
			s.logf("offline: replay %s failed, keeping queued: %v", entry.ID, err)
			continue
		}
		if err := s.queue.Delete(ctx, entry.ID); err != nil {
			s.logf("offline: delete replayed entry %s: %v", entry.ID, err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

// replay reconstructs one multipart submission from a queue entry and
// posts it.
func (s *Syncer) replay(ctx context.Context, entry Entry) error {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	for name, value := range entry.Fields {
		if err := form.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for i, image := range entry.Images {
		name := image.Name
		if name == "" {
			name = fmt.Sprintf("image-%d", i)
		}
		part, err := form.CreateFormFile("image", name)
		if err != nil {
			return fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(image.Data); err != nil {
			return fmt.Errorf("write image part: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if token := s.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server rejected entry: %s", resp.Status)
	}
	return nil
}

// RunPeriodic replays the queue on a fixed interval until the context
// is cancelled. Outside a browser there is no background-sync signal,
// so a ticker stands in as the retry scheduler.
func (s *Syncer) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sync(ctx); err != nil {
				s.logf("offline: sync run failed: %v", err)
			} else if n > 0 {
				s.logf("offline: delivered %d queued submission(s)", n)
			}
		}
	}
}
