package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func openTestCache(t *testing.T, root, generation string) *Cache {
	t.Helper()
	cache, err := OpenCache(root, generation)
	if err != nil {
		t.Fatalf("open cache %s: %v", generation, err)
	}
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := openTestCache(t, t.TempDir(), "v1")

	if _, ok := cache.Get("/app.js"); ok {
		t.Fatal("unexpected hit on empty cache")
	}
	err := cache.Put("/app.js", CachedResponse{Status: 200, ContentType: "text/javascript", Body: []byte("console.log(1)")})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	cached, ok := cache.Get("/app.js")
	if !ok {
		t.Fatal("miss after put")
	}
	if cached.Status != 200 || cached.ContentType != "text/javascript" || string(cached.Body) != "console.log(1)" {
		t.Fatalf("cached = %+v", cached)
	}
}

func TestActivateSweepsOldGenerations(t *testing.T) {
	root := t.TempDir()

	old := openTestCache(t, root, "v1")
	if err := old.Put("/", CachedResponse{Status: 200, Body: []byte("old shell")}); err != nil {
		t.Fatalf("seed v1: %v", err)
	}

	current := openTestCache(t, root, "v2")
	if err := current.Put("/", CachedResponse{Status: 200, Body: []byte("new shell")}); err != nil {
		t.Fatalf("seed v2: %v", err)
	}

	swept, err := current.Activate()
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(swept) != 1 || swept[0] != "v1" {
		t.Fatalf("swept = %v", swept)
	}

	if _, err := os.Stat(filepath.Join(root, "v1")); !os.IsNotExist(err) {
		t.Fatal("v1 directory still exists")
	}
	if cached, ok := current.Get("/"); !ok || string(cached.Body) != "new shell" {
		t.Fatal("current generation lost its entries")
	}
}

func TestInstallIsAtomic(t *testing.T) {
	shell := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/main.js":
			w.Write([]byte("asset:" + r.URL.Path))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer shell.Close()

	cache := openTestCache(t, t.TempDir(), "v1")
	ctx := context.Background()

	err := cache.Install(ctx, nil, shell.URL, []string{"/", "/main.js", "/missing.css"})
	if err == nil {
		t.Fatal("expected install to fail on the missing asset")
	}
	// Nothing was stored: no partial shell.
	if _, ok := cache.Get("/"); ok {
		t.Fatal("partial shell cached after failed install")
	}

	if err := cache.Install(ctx, nil, shell.URL, []string{"/", "/main.js"}); err != nil {
		t.Fatalf("install: %v", err)
	}
	if cached, ok := cache.Get("/main.js"); !ok || string(cached.Body) != "asset:/main.js" {
		t.Fatal("shell asset missing after install")
	}
}

type proxyEnv struct {
	proxy    *Proxy
	cache    *Cache
	queue    *Queue
	upstream *httptest.Server
	front    *httptest.Server
}

func newProxyEnv(t *testing.T, upstream http.Handler) *proxyEnv {
	t.Helper()
	env := &proxyEnv{
		cache: openTestCache(t, t.TempDir(), "v1"),
		queue: openTestQueue(t),
	}
	env.upstream = httptest.NewServer(upstream)
	t.Cleanup(env.upstream.Close)

	proxy, err := NewProxy(env.upstream.URL, env.cache, env.queue, ProxyOptions{Logf: func(string, ...any) {}})
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	env.proxy = proxy
	env.front = httptest.NewServer(proxy)
	t.Cleanup(env.front.Close)
	return env
}

func getJSON(t *testing.T, url string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	body := map[string]any{}
	_ = json.Unmarshal(raw, &body)
	if len(body) == 0 && len(raw) > 0 {
		body["_raw"] = string(raw)
	}
	return resp, body
}

func TestAPIFallbackSynthesizes503(t *testing.T) {
	env := newProxyEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"live":true}`))
	}))

	// Upstream down, nothing cached: synthesized offline response.
	env.upstream.Close()
	resp, body := getJSON(t, env.front.URL+"/api/reports/community", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if body["error"] != "Offline" || body["message"] == "" {
		t.Fatalf("body = %v", body)
	}
}

func TestAPINetworkFirstWithCachedFallback(t *testing.T) {
	var calls atomic.Int64
	env := newProxyEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reports":["rpt_1"]}`))
	}))

	resp, body := getJSON(t, env.front.URL+"/api/reports/community", nil)
	if resp.StatusCode != http.StatusOK || body["reports"] == nil {
		t.Fatalf("live fetch = %d %v", resp.StatusCode, body)
	}

	// The copy is stored in the background; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := env.cache.Get("/api/reports/community"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("response never cached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.upstream.Close()
	resp, body = getJSON(t, env.front.URL+"/api/reports/community", nil)
	if resp.StatusCode != http.StatusOK || body["reports"] == nil {
		t.Fatalf("cached fallback = %d %v", resp.StatusCode, body)
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d", calls.Load())
	}
}

func TestAssetCacheFirst(t *testing.T) {
	var calls atomic.Int64
	env := newProxyEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/javascript")
		w.Write([]byte("bundle"))
	}))

	for i := 0; i < 3; i++ {
		resp, body := getJSON(t, env.front.URL+"/static/main.js", nil)
		if resp.StatusCode != http.StatusOK || body["_raw"] != "bundle" {
			t.Fatalf("asset fetch %d = %d %v", i, resp.StatusCode, body)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestImagePlaceholderWhenUnreachable(t *testing.T) {
	env := newProxyEnv(t, http.NotFoundHandler())
	env.upstream.Close()

	resp, err := http.Get(env.front.URL + "/uploads/photo.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("placeholder = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, placeholderSVG) {
		t.Fatal("body is not the placeholder image")
	}

	// A non-image asset gets the offline JSON instead.
	resp2, body2 := getJSON(t, env.front.URL+"/static/main.js", nil)
	if resp2.StatusCode != http.StatusServiceUnavailable || body2["error"] != "Offline" {
		t.Fatalf("asset offline = %d %v", resp2.StatusCode, body2)
	}
}

func TestNavigationFallsBackToCachedShell(t *testing.T) {
	env := newProxyEnv(t, http.NotFoundHandler())
	if err := env.cache.Put("/", CachedResponse{Status: 200, ContentType: "text/html", Body: []byte("<html>shell</html>")}); err != nil {
		t.Fatalf("seed shell: %v", err)
	}
	env.upstream.Close()

	resp, body := getJSON(t, env.front.URL+"/reports/rpt_1", map[string]string{"Accept": "text/html"})
	if resp.StatusCode != http.StatusOK || body["_raw"] != "<html>shell</html>" {
		t.Fatalf("navigation fallback = %d %v", resp.StatusCode, body)
	}
}

func TestFailedSubmissionIsQueuedAndReplayed(t *testing.T) {
	env := newProxyEnv(t, http.NotFoundHandler())
	env.upstream.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("title", "Broken swing")
	_ = form.WriteField("category", "Parks")
	part, _ := form.CreateFormFile("image", "swing.jpg")
	_, _ = part.Write([]byte("jpegdata"))
	_ = form.Close()

	resp, err := http.Post(env.front.URL+"/api/reports", form.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var ack map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["queued"] != true {
		t.Fatalf("ack = %v", ack)
	}

	entries, err := env.queue.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("queued entries = %d", len(entries))
	}
	entry := entries[0]
	if entry.Fields["title"] != "Broken swing" || entry.Fields["category"] != "Parks" {
		t.Fatalf("fields = %v", entry.Fields)
	}
	if len(entry.Images) != 1 || entry.Images[0].Name != "swing.jpg" {
		t.Fatalf("images = %+v", entry.Images)
	}

	// Connectivity returns: the replay drains the queue.
	srv, accepted := newReplayServer(t, nil)
	syncer := NewSyncer(env.queue, SyncerOptions{Endpoint: srv.URL + "/api/reports", Logf: func(string, ...any) {}})
	if delivered, err := syncer.Sync(context.Background()); err != nil || delivered != 1 {
		t.Fatalf("sync = %d, %v", delivered, err)
	}
	if len(*accepted) != 1 || (*accepted)[0].fields["title"] != "Broken swing" {
		t.Fatalf("accepted = %+v", *accepted)
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newProxyEnv(t, http.NotFoundHandler())

	resp, body := getJSON(t, env.front.URL+"/offline/version", nil)
	if resp.StatusCode != http.StatusOK || body["version"] != "v1" {
		t.Fatalf("version = %d %v", resp.StatusCode, body)
	}
}

func TestActivateEndpointSweepsOldGenerations(t *testing.T) {
	root := t.TempDir()
	old := openTestCache(t, root, "v1")
	if err := old.Put("/", CachedResponse{Status: 200, Body: []byte("old shell")}); err != nil {
		t.Fatalf("seed v1: %v", err)
	}
	current := openTestCache(t, root, "v2")

	proxy, err := NewProxy("http://127.0.0.1:0", current, openTestQueue(t), ProxyOptions{Logf: func(string, ...any) {}})
	if err != nil {
		t.Fatalf("new proxy: %v", err)
	}
	front := httptest.NewServer(proxy)
	defer front.Close()

	resp, err := http.Post(front.URL+"/offline/activate", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Version string   `json:"version"`
		Swept   []string `json:"swept"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body.Version != "v2" {
		t.Fatalf("activate = %d %+v", resp.StatusCode, body)
	}
	if len(body.Swept) != 1 || body.Swept[0] != "v1" {
		t.Fatalf("swept = %v", body.Swept)
	}
	if _, err := os.Stat(filepath.Join(root, "v1")); !os.IsNotExist(err) {
		t.Fatal("v1 directory still exists")
	}
}

func TestParsePushDefaults(t *testing.T) {
	n := ParsePush([]byte(`{"body":"Your report was resolved","tag":"rpt_1"}`))
	if n.Title != "CrowdCare" {
		t.Fatalf("title = %q", n.Title)
	}
	if n.URL != "/" || n.Tag != "rpt_1" {
		t.Fatalf("notification = %+v", n)
	}
	if len(n.Actions) != 2 || n.Actions[0].Action != "view" || n.Actions[1].Action != "close" {
		t.Fatalf("actions = %+v", n.Actions)
	}

	plain := ParsePush([]byte("not json"))
	if plain.Body != "not json" || plain.Title != "CrowdCare" {
		t.Fatalf("plain = %+v", plain)
	}

	view := n.HandleClick("view")
	if !view.Close || view.OpenURL != "/" {
		t.Fatalf("view click = %+v", view)
	}
	dismiss := n.HandleClick("close")
	if !dismiss.Close || dismiss.OpenURL != "" {
		t.Fatalf("close click = %+v", dismiss)
	}
}
