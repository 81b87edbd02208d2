package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"directory-sync/backend/internal/api"
	"directory-sync/backend/internal/app"
	"directory-sync/backend/internal/config"
	"directory-sync/backend/internal/server"
	"directory-sync/backend/internal/telemetry"
	telemetryotel "directory-sync/backend/internal/telemetry/otel"
	"directory-sync/backend/internal/telemetry/producer"
)

const httpShutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		log.Printf("telemetry: publishing sync events to kafka topic %s", kafkaProducer.Topic())
		emitters = append(emitters, kafkaProducer)
	}

	a, err := app.New(ctx, cfg, app.Options{
		Emitter:        telemetry.Multi(emitters...),
		TracerProvider: providers.TracerProvider,
		MeterProvider:  providers.MeterProvider,
	})
	if err != nil {
		log.Fatalf("app: %v", err)
	}
	log.Printf("store: using %s", a.Store.Path())

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewGRPCServer()
	server.RegisterServices(s, server.Deps{
		HealthPinger: a.Store,
		SyncStatus:   a.Store,
	})

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(a.Service),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	if err := a.StartSync(); err != nil {
		log.Fatalf("sync: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	a.Orchestrator.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, httpShutdownTimeout)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancel()
	s.GracefulStop()
	log.Println("servers stopped")

	// Let in-flight sync event emits finish before the providers and the producer go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("telemetry: close kafka producer: %v", err)
		}
	}
	otelCtx, otelCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := providers.Shutdown(otelCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	otelCancel()

	if err := a.Close(); err != nil {
		log.Printf("store: close: %v", err)
	}
}
