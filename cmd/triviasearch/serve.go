package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/triviasearch/internal/config"
	"github.com/saltyorg/triviasearch/internal/search"
	"github.com/saltyorg/triviasearch/internal/snapshot"
	"github.com/saltyorg/triviasearch/internal/web"
)

// newLoader builds an idle snapshot loader from settings.
func newLoader(loader *config.Loader) (*snapshot.Loader, snapshot.Source, error) {
	location := loader.String(config.KeySnapshotSource, DefaultSnapshot)
	src, err := snapshot.NewSource(location, nil)
	if err != nil {
		return nil, nil, err
	}

	engine := snapshot.NewEngine(loader.String(config.KeyEngineDir, ""))
	return snapshot.NewLoader(src, engine, snapshot.LoadConfig(loader)), src, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port := settings.Int(config.KeyServerPort, 0)
	bind := settings.String(config.KeyServerBind, "")
	allowSubnet := settings.String(config.KeyServerAllowSubnet, "")

	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	loader, src, err := newLoader(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := loader.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to release snapshot")
		}
	}()

	var publishPath string
	if settings.Bool(config.KeySnapshotPublish, false) {
		if fs, ok := src.(*snapshot.FileSource); ok {
			publishPath = fs.Path()
		} else {
			log.Warn().Str("source", src.String()).Msg("Publishing requires a local snapshot file; /db.sqlite3 disabled")
		}
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("snapshot", src.String()).
		Bool("publish", publishPath != "").
		Msg("Starting triviasearch")

	binding := search.Bind(loader, func(v search.View) {
		log.Debug().Str("path", v.Handle.Path()).Msg("Search binding attached to snapshot")
	})
	defer binding.Release()

	server := web.NewServer(loader, binding, web.Options{
		Port:        port,
		Bind:        bind,
		AllowedNet:  allowedNet,
		CORSOrigins: splitList(settings.String(config.KeyServerCORSOrigins, "")),
		PublishPath: publishPath,
		Heartbeat:   settings.Duration(config.KeySSEHeartbeat, 0),
	})
	server.Handlers().SetVersionInfo(version, commit, date)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("triviasearch stopped")
	return nil
}

// splitList splits a comma-separated setting, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
