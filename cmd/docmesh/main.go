// Package main implements the docmesh node service: a replicated document
// store exposing an HTTP JSON interface.
//
// Each node:
//   - Stores JSON documents under their "_id" in an embedded badger store
//   - Serialises writes per document and assigns monotonic "_rev" tokens
//   - Pushes every successful write synchronously to all configured peers
//   - Rolls a write back and returns 409 when any peer reports a conflict
//   - Accepts peer pushes on /replicate under the same per-document lock
//
// Configuration comes from a TOML file (-config) with DOCMESH_* environment
// overrides; see internal/config.
//
// Example usage:
//
//	# Start a two-node mesh
//	docmesh -config nodeA.toml &
//	docmesh -config nodeB.toml &
//
//	# Store a document
//	curl -X POST localhost:5984/api/docs \
//	  -H 'Authorization: Bearer s3cret' \
//	  -d '{"title":"hello"}'
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dreamware/docmesh/internal/api"
	"github.com/dreamware/docmesh/internal/config"
	"github.com/dreamware/docmesh/internal/engine"
	"github.com/dreamware/docmesh/internal/replication"
	"github.com/dreamware/docmesh/internal/storage"
)

// logFatal is a variable to allow mocking logrus.Fatalf in tests.
var logFatal = logrus.Fatalf

func main() {
	configPath := flag.String("config", "", "path to TOML config file (env-only when empty)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logFatal("config: %v", err)
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logFatal("config: unknown log level %q", cfg.LogLevel)
		return
	}
	logrus.SetLevel(level)

	store, err := storage.OpenBadger(cfg.DataDir)
	if err != nil {
		logFatal("open store: %v", err)
		return
	}

	eng := engine.New(store)
	pusher := replication.NewClient(cfg.Peers, cfg.OutboundToken, cfg.PeerTimeout())
	server := api.NewServer(eng, pusher, cfg.AuthTokens)

	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second, // Prevent slowloris attacks
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"listen":   cfg.Listen,
			"data_dir": cfg.DataDir,
			"peers":    len(cfg.Peers),
		}).Info("docmesh node listening")
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen: %v", err)
		}
	}()

	// Wait for shutdown signal
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("server shutdown")
	}
	if err := store.Close(); err != nil {
		logrus.WithError(err).Error("close store")
	}
	logrus.Info("node stopped")
}

// loadConfig reads the file when a path is given, else builds the
// configuration from the environment alone.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}
