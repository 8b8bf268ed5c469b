package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tripwell/booking-platform/internal/billing"
	"github.com/tripwell/booking-platform/internal/billing/pgstore"
	"github.com/tripwell/booking-platform/internal/clock"
	"github.com/tripwell/booking-platform/internal/config"
	"github.com/tripwell/booking-platform/internal/httpx"
	kafkax "github.com/tripwell/booking-platform/internal/kafka"
	"github.com/tripwell/booking-platform/internal/postgres"
	"github.com/tripwell/booking-platform/internal/redisx"
	"github.com/tripwell/booking-platform/migrations"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if err := migrations.Apply(ctx, db, "billing"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers: lifecycle events, confirmations, settlement-to-self
	pEvents := kafkax.NewProducer(cfg.KafkaBrokers, billing.TopicPaymentEvents, 1024)
	pEvents.Start(ctx)
	pConfirm := kafkax.NewProducer(cfg.KafkaBrokers, billing.TopicPaymentConfirmation, 1024)
	pConfirm.Start(ctx)
	pSettle := kafkax.NewProducer(cfg.KafkaBrokers, billing.TopicSettlement, 1024)
	pSettle.Start(ctx)

	emitter := &billing.KafkaEmitter{
		Events:        pEvents,
		Confirmations: pConfirm,
		Service:       cfg.ServiceName,
	}
	settlements := &billing.KafkaSettlements{Producer: pSettle, Service: cfg.ServiceName}

	// Engine. The gateway is mock-only in this deployment; real-gateway
	// wiring replaces billing.NewMockGateway here.
	store := pgstore.New(db)
	engine := billing.NewEngine(store, billing.NewMockGateway(), emitter, settlements, clock.NewSystem(),
		billing.WithMockMode(cfg.GatewayMockMode),
		billing.WithResponseCache(rdb),
	)

	// Settlement worker: consume our own settlement topic.
	group := getenv("SETTLEMENT_GROUP", "billing-settlement")
	workers := mustAtoi(os.Getenv("SETTLEMENT_WORKERS"), "4")
	settler := &billing.Settler{Engine: engine, Redis: rdb}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, billing.TopicSettlement, workers)
	go func() {
		log.Printf("settlement consumer started: group=%s workers=%d", group, workers)
		if err := cons.Start(ctx, settler.HandleMessage); err != nil {
			log.Printf("settlement consumer exit: %v", err)
			cancel()
		}
	}()

	// HTTP
	router := httpx.NewRouter()
	h := &httpx.PaymentsHandler{
		Service:    engine,
		Reconciler: &billing.Reconciler{Engine: engine, Secret: cfg.WebhookSecret, Redis: rdb},
	}
	h.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("%s listening at %s", cfg.ServiceName, cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop consumer and producer loops

	for _, p := range []*kafkax.Producer{pEvents, pConfirm, pSettle} {
		p.Close()
	}
	for _, p := range []*kafkax.Producer{pEvents, pConfirm, pSettle} {
		p.WaitClosed()
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
