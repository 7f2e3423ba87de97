// Command interceptdemo exercises the interception core end to end: it
// loads a stub bundle (or registers one demo Recipe if none is given),
// wires a Hook into an *http.Client, fires one request through it, and
// prints the synthesized response — the same structured-logging and
// graceful-shutdown shape as cmd/server/main.go, trimmed to a single
// demo dispatch instead of a long-running API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patchwire/intercept"
	"github.com/patchwire/intercept/internal/bundle"
	"github.com/patchwire/intercept/internal/config"
	"github.com/patchwire/intercept/internal/introspect"
	"github.com/patchwire/intercept/internal/telemetry"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.Load()

	bundlePath := flag.String("bundle", "", "path to a JSON stub bundle (spec §6.1); if empty, a demo recipe is registered instead")
	introspectAddr := flag.String("introspect", cfg.IntrospectAddr, "address to serve the read-only introspection API on (e.g. :9090); disabled if empty")
	target := flag.String("url", "http://example.test/hello", "URL to dispatch through the interception core")
	flag.Parse()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer shutdownTelemetry(context.Background())

	reg := intercept.NewRegistry()

	if *bundlePath != "" {
		data, err := os.ReadFile(*bundlePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *bundlePath).Msg("failed to read bundle")
		}
		if err := bundle.Load(reg, data); err != nil {
			log.Fatal().Err(err).Msg("failed to load bundle")
		}
		log.Info().Str("path", *bundlePath).Msg("bundle loaded")
	} else {
		registerDemoRecipe(reg)
		log.Info().Msg("no bundle given, registered a demo recipe")
	}

	var introspectServer *http.Server
	if *introspectAddr != "" {
		introspectServer = &http.Server{Addr: *introspectAddr, Handler: introspect.NewRouter(reg)}
		go func() {
			if err := introspectServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("introspection server failed")
			}
		}()
		log.Info().Str("addr", *introspectAddr).Msg("introspection server listening")
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		if introspectServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			introspectServer.Shutdown(shutdownCtx)
		}
		os.Exit(0)
	}()

	client := intercept.NewHook(reg).Client()
	resp, err := client.Get(*target)
	if err != nil {
		log.Fatal().Err(err).Msg("dispatch failed")
	}
	defer resp.Body.Close()

	body := make([]byte, 0)
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		body = append(body, buf[:n]...)
		if err != nil {
			break
		}
	}

	fmt.Printf("%d %s\n", resp.StatusCode, resp.Status)
	for k, v := range resp.Header {
		fmt.Printf("%s: %v\n", k, v)
	}
	fmt.Println()
	fmt.Println(string(body))
}

func registerDemoRecipe(reg *intercept.Registry) {
	b := intercept.NewBuilder()
	b.Requests().Get().ForUrl("http://example.test/hello")
	b.Responds().
		WithStatus(200).
		WithMediaType("application/json").
		WithContent([]byte(`{"message":"hello from the interception core"}`))
	if _, err := b.RegisterWith(reg); err != nil {
		log.Fatal().Err(err).Msg("failed to register demo recipe")
	}
}
