package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/redis/go-redis/v9"

	"plaza/server/internal/gateway"
	"plaza/server/internal/store"
	"plaza/server/internal/store/memstore"
	"plaza/server/internal/store/redistore"
	"plaza/server/logging"
	"plaza/server/logging/sinks"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	redisAddr := flag.String("redis", "", "Redis address; empty runs the in-memory backend")
	jsonLog := flag.String("log-json", "", "path for newline-delimited JSON logs")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	logCfg.JSON.FilePath = *jsonLog
	named := []logging.NamedSink{
		{Name: "console", Sink: sinks.NewConsoleSink(os.Stdout, logCfg.Console)},
	}
	if logCfg.JSON.FilePath != "" {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		named = append(named, logging.NamedSink{Name: "json", Sink: sinks.NewJSON(file, logCfg.JSON.FlushInterval)})
	}
	router := logging.NewRouter(nil, logCfg, named)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		router.Close(ctx)
	}()

	var connect gateway.ConnectFunc
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		backend := redistore.New(client, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := backend.Ping(ctx); err != nil {
			cancel()
			log.Fatalf("redis unreachable at %s: %v", *redisAddr, err)
		}
		cancel()
		connect = func() store.Store { return backend.Connect() }
		log.Printf("using redis backend at %s", *redisAddr)
	} else {
		backend := memstore.New(nil)
		connect = func() store.Store { return backend.Connect() }
		log.Printf("using in-memory backend")
	}

	gw := gateway.New(connect, router)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      gw.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("gateway listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("forced shutdown: %v", err)
	}
}
