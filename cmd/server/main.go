package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/app"
	"github.com/JulianIrigoyen/imho-real-estate-agent/internal/config"
)

func main() {
	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	cfg := config.Load()
	a := app.New(ctx, cfg)
	defer a.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: a.Router,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown error: %v", err)
		}
		// Cancel root context so in-flight aggregations stop too.
		rootCancel()
		close(idleConnsClosed)
	}()

	log.Printf("starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	<-idleConnsClosed
	log.Printf("server stopped")
}
