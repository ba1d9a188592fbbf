package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"character-card-wizard/internal/config"
	"character-card-wizard/internal/fakeremote"
	"character-card-wizard/internal/logger"
)

func main() {
	cfg := config.Load()
	lg := logger.New(logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Format: cfg.LogFormat, Output: os.Stderr})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	server := fakeremote.New(fakeremote.Options{
		FailTypes:  cfg.FakeRemoteFailTypes,
		FailCard:   cfg.FakeRemoteFailCard,
		FailReason: cfg.FakeRemoteFailReason,
		OmitImage:  cfg.FakeRemoteOmitImage,
		Logger:     lg,
	})
	httpServer := &http.Server{
		Addr:    cfg.FakeRemoteAddr,
		Handler: server.Router(),
	}

	log.Printf("fakeremote listening on %s", cfg.FakeRemoteAddr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
