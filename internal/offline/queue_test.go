package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	queue, err := OpenQueue(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestQueuePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	queue, err := OpenQueue(path)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}

	first, err := queue.Enqueue(ctx, Entry{
		CreatedAt: time.Now().Add(-time.Minute),
		Fields:    map[string]string{"title": "Fallen tree", "category": "Parks"},
		Images:    []ImageAttachment{{Name: "tree.jpg", ContentType: "image/jpeg", Data: []byte("jpegdata")}},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated entry id")
	}
	if _, err := queue.Enqueue(ctx, Entry{Fields: map[string]string{"title": "Pothole"}}); err != nil {
		t.Fatalf("enqueue second: %v", err)
	}
	queue.Close()

	reopened, err := OpenQueue(path)
	if err != nil {
		t.Fatalf("reopen queue: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Oldest first.
	if entries[0].ID != first.ID {
		t.Fatalf("order wrong: first = %s", entries[0].ID)
	}
	if entries[0].Fields["title"] != "Fallen tree" {
		t.Fatalf("fields = %v", entries[0].Fields)
	}
	if len(entries[0].Images) != 1 || string(entries[0].Images[0].Data) != "jpegdata" {
		t.Fatalf("images not round-tripped: %+v", entries[0].Images)
	}

	if err := reopened.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n, _ := reopened.Len(ctx); n != 1 {
		t.Fatalf("len after delete = %d", n)
	}
}

type replayRecord struct {
	fields map[string]string
	images []string
}

// newReplayServer accepts submissions whose title is not in rejected.
func newReplayServer(t *testing.T, rejected map[string]bool) (*httptest.Server, *[]replayRecord) {
	t.Helper()
	var mu sync.Mutex
	accepted := &[]replayRecord{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fields := map[string]string{}
		for name, values := range r.MultipartForm.Value {
			fields[name] = values[0]
		}
		if rejected[fields["title"]] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var images []string
		for _, files := range r.MultipartForm.File {
			for _, file := range files {
				images = append(images, file.Filename)
			}
		}
		mu.Lock()
		*accepted = append(*accepted, replayRecord{fields: fields, images: images})
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)
	return srv, accepted
}

func TestSyncDeletesOnlyDeliveredEntries(t *testing.T) {
	queue := openTestQueue(t)
	ctx := context.Background()

	good, err := queue.Enqueue(ctx, Entry{
		Fields: map[string]string{"title": "Streetlight out", "category": "Electricity", "latitude": "12.97"},
		Images: []ImageAttachment{{Name: "dark.jpg", ContentType: "image/jpeg", Data: []byte("img")}},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	bad, err := queue.Enqueue(ctx, Entry{Fields: map[string]string{"title": "Rejected one"}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	srv, accepted := newReplayServer(t, map[string]bool{"Rejected one": true})
	syncer := NewSyncer(queue, SyncerOptions{
		Endpoint: srv.URL + "/api/reports",
		Token:    func() string { return "tok" },
		Logf:     func(string, ...any) {},
	})

	delivered, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}

	remaining, err := queue.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != bad.ID {
		t.Fatalf("remaining = %+v", remaining)
	}

	if len(*accepted) != 1 {
		t.Fatalf("accepted = %d", len(*accepted))
	}
	record := (*accepted)[0]
	if record.fields["title"] != "Streetlight out" || record.fields["latitude"] != "12.97" {
		t.Fatalf("replayed fields = %v", record.fields)
	}
	if len(record.images) != 1 || record.images[0] != "dark.jpg" {
		t.Fatalf("replayed images = %v", record.images)
	}
	_ = good

	// The failed entry is retried on the next run once the server
	// accepts it.
	srv2, _ := newReplayServer(t, nil)
	syncer2 := NewSyncer(queue, SyncerOptions{Endpoint: srv2.URL + "/api/reports", Logf: func(string, ...any) {}})
	if delivered, err = syncer2.Sync(ctx); err != nil || delivered != 1 {
		t.Fatalf("second sync = %d, %v", delivered, err)
	}
	if n, _ := queue.Len(ctx); n != 0 {
		t.Fatalf("queue not drained, len = %d", n)
	}
}

func TestSyncWithUnreachableServerKeepsQueue(t *testing.T) {
	queue := openTestQueue(t)
	ctx := context.Background()

	if _, err := queue.Enqueue(ctx, Entry{Fields: map[string]string{"title": "Pothole"}}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	dead := httptest.NewServer(nil)
	endpoint := dead.URL + "/api/reports"
	dead.Close()

	syncer := NewSyncer(queue, SyncerOptions{Endpoint: endpoint, Logf: func(string, ...any) {}})
	delivered, err := syncer.Sync(ctx)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if delivered != 0 {
		t.Fatalf("delivered = %d", delivered)
	}
	if n, _ := queue.Len(ctx); n != 1 {
		t.Fatalf("entry lost, len = %d", n)
	}
}
