// The agent runs beside a CrowdCare client on flaky networks: it
// proxies API traffic through an offline-aware cache, keeps a durable
// queue of report submissions made while disconnected, replays them
// when connectivity returns, and maintains the realtime sockets.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"crowdcare/internal/gamification"
	"crowdcare/internal/live"
	"crowdcare/internal/offline"
	"crowdcare/internal/ws"
)

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// shellManifest lists the assets cached at install time so the app
// shell renders without a network.
var shellManifest = []string{
	"/",
	"/static/main.js",
	"/static/main.css",
	"/manifest.json",
	"/offline.html",
}

func main() {
	addr := getenv("CROWDCARE_AGENT_ADDR", ":8788")
	apiURL := getenv("CROWDCARE_API_URL", "http://localhost:8787")
	userID := getenv("CROWDCARE_USER_ID", "")
	token := getenv("CROWDCARE_TOKEN", "")
	stateDir := getenv("CROWDCARE_AGENT_STATE_DIR", "./agent-state")
	generation := getenv("CROWDCARE_CACHE_GENERATION", "crowdcare-v1")
	syncInterval := time.Duration(getenvInt("CROWDCARE_SYNC_INTERVAL_SECONDS", 30)) * time.Second

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("create state dir: %v", err)
	}

	queue, err := offline.OpenQueue(filepath.Join(stateDir, "queue.db"))
	if err != nil {
		log.Fatalf("open offline queue: %v", err)
	}
	defer queue.Close()

	cache, err := offline.OpenCache(filepath.Join(stateDir, "cache"), generation)
	if err != nil {
		log.Fatalf("open cache: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shell install is best effort at boot; the proxy fills the cache
	// as pages are fetched either way.
	installCtx, installCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cache.Install(installCtx, nil, apiURL, shellManifest); err != nil {
		log.Printf("WARNING: shell install incomplete: %v", err)
	}
	installCancel()
	if swept, err := cache.Activate(); err != nil {
		log.Printf("WARNING: cache sweep failed: %v", err)
	} else if len(swept) > 0 {
		log.Printf("swept stale cache generations: %v", swept)
	}

	proxy, err := offline.NewProxy(apiURL, cache, queue, offline.ProxyOptions{})
	if err != nil {
		log.Fatalf("build proxy: %v", err)
	}

	syncer := offline.NewSyncer(queue, offline.SyncerOptions{
		Endpoint: apiURL + "/api/reports",
		Token:    func() string { return token },
	})
	go syncer.RunPeriodic(ctx, syncInterval)

	var channel *live.Channel
	var scores *live.ScoreStream
	if userID != "" {
		channel = live.NewChannel(live.Options{BaseURL: apiURL, Token: token}, live.Handlers{
			StatusUpdate: func(e ws.StatusUpdate) {
				log.Printf("report %s: %s -> %s", e.ReportID, e.OldStatus, e.NewStatus)
			},
			ResolutionUpdate: func(e ws.ResolutionUpdate) {
				log.Printf("report %s resolved, evidence %.1fm away", e.ReportID, e.DistanceMeters)
			},
			CommentNew: func(e ws.CommentNew) {
				log.Printf("report %s: new comment from %s", e.ReportID, e.UserName)
			},
			StateChange: func(state live.State) {
				log.Printf("live channel: %s", state)
			},
		})
		if err := channel.Connect(userID); err != nil {
			log.Fatalf("live channel: %v", err)
		}

		scores = live.NewScoreStream(live.Options{BaseURL: apiURL, Token: token}, live.ScoreHandlers{
			PointsUpdate: func(e gamification.PointsUpdate) {
				log.Printf("points %+d, total %d (%s)", e.Delta, e.Total, e.Level)
			},
			BadgeUnlocked: func(e gamification.BadgeUnlocked) {
				log.Printf("badge unlocked: %s", e.Badge)
			},
		})
		if err := scores.Connect(userID); err != nil {
			log.Fatalf("score stream: %v", err)
		}
	} else {
		log.Printf("no user id configured, realtime sockets disabled")
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("CrowdCare agent proxying %s on %s (cache %s)", apiURL, addr, generation)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("agent server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if channel != nil {
		channel.Disconnect()
	}
	if scores != nil {
		scores.Disconnect()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
