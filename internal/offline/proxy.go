package offline

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// placeholderSVG is served when an image asset is unreachable and
// uncached, so broken-image icons never appear in the shell.
var placeholderSVG = []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="200" height="150" viewBox="0 0 200 150"><rect width="200" height="150" fill="#e5e7eb"/><text x="100" y="79" text-anchor="middle" font-family="sans-serif" font-size="13" fill="#6b7280">Image unavailable offline</text></svg>`)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".ico": true,
}

// Proxy fronts the CrowdCare API for a client that may lose its
// network. GET requests are served network-first for API and page
// loads and cache-first for static assets; report submissions that
// fail at the network layer are queued for later replay.
type Proxy struct {
	upstream *url.URL
	client   *http.Client
	cache    *Cache
	queue    *Queue
	logf     func(format string, args ...any)

	// cacheable API paths, refreshed in the background on each
	// successful fetch.
	cachePaths map[string]bool
	// reportPath is the submission endpoint whose failed POSTs are
	// queued instead of dropped.
	reportPath string
	// rootDoc and fallbackDoc are the navigation fallbacks.
	rootDoc     string
	fallbackDoc string
}

type ProxyOptions struct {
	Client *http.Client
	Logf   func(format string, args ...any)
	// CachePaths lists the API paths whose 200 responses are copied
	// into the cache. Defaults to the community feed and the
	// department list.
	CachePaths []string
}

func NewProxy(upstream string, cache *Cache, queue *Queue, opts ProxyOptions) (*Proxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		upstream:    target,
		client:      opts.Client,
		cache:       cache,
		queue:       queue,
		logf:        opts.Logf,
		reportPath:  "/api/reports",
		rootDoc:     "/",
		fallbackDoc: "/offline.html",
		cachePaths: map[string]bool{
			"/api/reports/community": true,
			"/api/admin/departments": true,
		},
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.logf == nil {
		p.logf = log.Printf
	}
	if len(opts.CachePaths) > 0 {
		p.cachePaths = make(map[string]bool, len(opts.CachePaths))
		for _, cachePath := range opts.CachePaths {
			p.cachePaths[cachePath] = true
		}
	}
	return p, nil
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Local control surface.
	if r.URL.Path == "/offline/version" && r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"version": p.cache.Generation()})
		return
	}
	if r.URL.Path == "/offline/activate" && r.Method == http.MethodPost {
		p.handleActivate(w)
		return
	}

	if r.Method != http.MethodGet {
		p.passThrough(w, r)
		return
	}

	switch {
	case strings.Contains(r.URL.Path, "/api/"):
		p.serveAPI(w, r)
	case isNavigation(r):
		p.serveNavigation(w, r)
	default:
		p.serveAsset(w, r)
	}
}

// handleActivate forces the current cache generation to take over,
// sweeping every older one. This is the manual "update now" control.
func (p *Proxy) handleActivate(w http.ResponseWriter) {
	swept, err := p.cache.Activate()
	if err != nil {
		p.logf("offline: activate: %v", err)
		http.Error(w, "activate failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"version": p.cache.Generation(),
		"swept":   swept,
	})
}

func isNavigation(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// serveAPI is network-first: live responses win, cached copies cover
// outages, and a synthesized 503 covers cold caches.
func (p *Proxy) serveAPI(w http.ResponseWriter, r *http.Request) {
	resp, err := p.forward(r)
	if err == nil {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			p.writeOffline(w)
			return
		}
		if resp.StatusCode == http.StatusOK && p.cachePaths[r.URL.Path] {
			// Fire-and-forget: caching never delays the live response.
			go p.store(cacheKey(r), resp.Header.Get("Content-Type"), resp.StatusCode, body)
		}
		writeResponse(w, resp.StatusCode, resp.Header.Get("Content-Type"), body)
		return
	}

	if cached, ok := p.cache.Get(cacheKey(r)); ok {
		writeResponse(w, cached.Status, cached.ContentType, cached.Body)
		return
	}
	p.writeOffline(w)
}

// serveNavigation is network-first with the cached root document as
// fallback, then the offline page.
func (p *Proxy) serveNavigation(w http.ResponseWriter, r *http.Request) {
	resp, err := p.forward(r)
	if err == nil {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			writeResponse(w, resp.StatusCode, resp.Header.Get("Content-Type"), body)
			return
		}
	}

	if cached, ok := p.cache.Get(p.rootDoc); ok {
		writeResponse(w, http.StatusOK, cached.ContentType, cached.Body)
		return
	}
	if cached, ok := p.cache.Get(p.fallbackDoc); ok {
		writeResponse(w, http.StatusOK, cached.ContentType, cached.Body)
		return
	}
	p.writeOffline(w)
}

// serveAsset is cache-first; network fills the cache on a miss. A
// doomed image request degrades to a placeholder.
func (p *Proxy) serveAsset(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)
	if cached, ok := p.cache.Get(key); ok {
		writeResponse(w, cached.Status, cached.ContentType, cached.Body)
		return
	}

	resp, err := p.forward(r)
	if err == nil {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(resp.Body)
		if readErr == nil {
			if resp.StatusCode == http.StatusOK {
				p.store(key, resp.Header.Get("Content-Type"), resp.StatusCode, body)
			}
			writeResponse(w, resp.StatusCode, resp.Header.Get("Content-Type"), body)
			return
		}
	}

	if imageExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
		writeResponse(w, http.StatusOK, "image/svg+xml", placeholderSVG)
		return
	}
	p.writeOffline(w)
}

// passThrough forwards non-GET requests untouched, except that a
// report submission failing at the network layer is queued for replay
// instead of lost.
func (p *Proxy) passThrough(w http.ResponseWriter, r *http.Request) {
	var bodyCopy []byte
	isReport := r.Method == http.MethodPost && r.URL.Path == p.reportPath
	if isReport {
		var err error
		bodyCopy, err = io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(bodyCopy))
	}

	resp, err := p.forward(r)
	if err != nil {
		if isReport {
			p.queueSubmission(w, r, bodyCopy)
			return
		}
		p.writeOffline(w)
		return
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// queueSubmission parses the failed multipart report submission and
// stores it durably, acknowledging with 202.
func (p *Proxy) queueSubmission(w http.ResponseWriter, r *http.Request, body []byte) {
	entry, err := entryFromMultipart(r.Header.Get("Content-Type"), body)
	if err != nil {
		p.logf("offline: cannot queue submission: %v", err)
		p.writeOffline(w)
		return
	}

	queued, err := p.queue.Enqueue(r.Context(), entry)
	if err != nil {
		p.logf("offline: enqueue submission: %v", err)
		p.writeOffline(w)
		return
	}

	p.logf("offline: queued report submission %s for replay", queued.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"queued":  true,
		"queueId": queued.ID,
		"message": "You are offline. The report will be submitted automatically when connectivity returns.",
	})
}

// entryFromMultipart converts a multipart form body into a queue
// entry: plain fields into the field map, file parts into images.
func entryFromMultipart(contentType string, body []byte) (Entry, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return Entry{}, err
	}
	reader := multipart.NewReader(bytes.NewReader(body), params["boundary"])

	entry := Entry{Fields: map[string]string{}}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Entry{}, err
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return Entry{}, err
		}
		if part.FileName() != "" {
			entry.Images = append(entry.Images, ImageAttachment{
				Name:        part.FileName(),
				ContentType: part.Header.Get("Content-Type"),
				Data:        data,
			})
			continue
		}
		entry.Fields[part.FormName()] = string(data)
	}
	return entry, nil
}

// forward replays the request against the upstream.
func (p *Proxy) forward(r *http.Request) (*http.Response, error) {
	target := *p.upstream
	target.Path = r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	req.Header = r.Header.Clone()
	return p.client.Do(req)
}

func (p *Proxy) store(key, contentType string, status int, body []byte) {
	if err := p.cache.Put(key, CachedResponse{Status: status, ContentType: contentType, Body: body}); err != nil {
		p.logf("offline: cache %s: %v", key, err)
	}
}

func (p *Proxy) writeOffline(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "Offline",
		"message": "You are offline and this data is not cached yet.",
	})
}

func writeResponse(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
