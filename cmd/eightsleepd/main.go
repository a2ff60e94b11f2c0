// Command eightsleepd is a bridge daemon for Eight Sleep pods. It polls
// the vendor cloud, exposes a local HTTP API with a websocket event
// stream, and optionally publishes Home Assistant MQTT discovery.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trymwestin/eightsleep/internal/config"
	"github.com/trymwestin/eightsleep/internal/core/api"
	"github.com/trymwestin/eightsleep/internal/core/auth"
	"github.com/trymwestin/eightsleep/internal/core/eight"
	"github.com/trymwestin/eightsleep/internal/core/state"
	"github.com/trymwestin/eightsleep/internal/httpapi"
	"github.com/trymwestin/eightsleep/internal/mqtt"
	"github.com/trymwestin/eightsleep/internal/poller"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "eightsleepd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	log.Info("eightsleepd starting")

	tz, err := time.LoadLocation(cfg.Eight.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Eight.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Core wiring ---
	tokens := auth.NewTokenManager(cfg.Eight.AuthURL, auth.Credentials{
		Email:        cfg.Eight.Email,
		Password:     cfg.Eight.Password,
		ClientID:     cfg.Eight.ClientID,
		ClientSecret: cfg.Eight.ClientSecret,
	}, log)
	gateway := api.NewGateway(tokens, log)
	bus := state.NewEventBus(log)

	client := eight.NewClient(gateway, bus, eight.Options{
		ClientAPIURL: cfg.Eight.ClientAPIURL,
		AppAPIURL:    cfg.Eight.AppAPIURL,
		Timezone:     tz,
	}, log)
	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("client start: %w", err)
	}
	defer client.Close()
	log.Info("device discovered",
		"device_id", client.DeviceID(),
		"cooling", client.IsCoolingCapable(),
		"base", client.HasBase(),
		"speaker", client.HasSpeaker(),
		"occupants", len(client.Occupants()))

	// --- Poller ---
	p := poller.New(client, poller.Intervals{
		Device:  time.Duration(cfg.Poll.DeviceInterval) * time.Second,
		User:    time.Duration(cfg.Poll.UserInterval) * time.Second,
		Base:    time.Duration(cfg.Poll.BaseInterval) * time.Second,
		Speaker: time.Duration(cfg.Poll.SpeakerInterval) * time.Second,
	}, log)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("poller start: %w", err)
	}
	defer p.Stop(context.Background())

	// --- MQTT publisher ---
	var pub mqtt.Publisher
	if cfg.MQTT.Enabled {
		pub = mqtt.NewHAPublisher(mqtt.MQTTConfig{
			Broker:      cfg.MQTT.Broker,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			DeviceName:  cfg.MQTT.DeviceName,
		}, client, bus, log)
	} else {
		pub = mqtt.NewStubPublisher(log)
	}
	if err := pub.Start(ctx); err != nil {
		return fmt.Errorf("mqtt start: %w", err)
	}
	defer pub.Stop(context.Background())

	// --- HTTP API ---
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.NewServer(client, bus, log).Handler(),
	}
	errC := make(chan error, 1)
	go func() {
		log.Info("HTTP API listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errC:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	log.Info("eightsleepd stopped")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
