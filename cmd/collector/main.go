package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"streamview/telemetry/internal/logger"
	"streamview/telemetry/internal/services/ingest"
)

func main() {
	// Load .env at the very start so every later env read sees it.
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	warehouse, err := newWarehouse()
	if err != nil {
		log.Fatalf("Failed to initialize warehouse: %v", err)
	}
	defer warehouse.Close()

	config := ingest.Config{
		APIKey:        os.Getenv("COLLECTOR_API_KEY"),
		AllowedOrigin: os.Getenv("COLLECTOR_ALLOWED_ORIGIN"),
	}
	server := ingest.NewServer(config, warehouse, logger.New("ingest"))

	addr := os.Getenv("COLLECTOR_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("Collector listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Collector failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down collector...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Collector forced to shutdown: %v", err)
	}

	log.Println("Collector exiting.")
}

// newWarehouse picks ClickHouse when CLICKHOUSE_ADDR is set and falls back
// to the in-memory warehouse otherwise.
func newWarehouse() (ingest.Warehouse, error) {
	if os.Getenv("CLICKHOUSE_ADDR") == "" {
		log.Println("CLICKHOUSE_ADDR not set; using in-memory warehouse (data is lost on restart)")
		return ingest.NewMemoryWarehouse(), nil
	}

	warehouse, err := ingest.NewClickHouseWarehouse(ingest.ClickHouseConfigFromEnv(), logger.New("clickhouse"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := warehouse.EnsureSchema(ctx); err != nil {
		warehouse.Close()
		return nil, err
	}
	return warehouse, nil
}
