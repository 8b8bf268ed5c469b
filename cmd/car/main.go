package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tripwell/booking-platform/internal/car"
	"github.com/tripwell/booking-platform/internal/clock"
	"github.com/tripwell/booking-platform/internal/config"
	"github.com/tripwell/booking-platform/internal/httpx"
	"github.com/tripwell/booking-platform/internal/postgres"
	"github.com/tripwell/booking-platform/internal/reservation"
	"github.com/tripwell/booking-platform/internal/reservation/pgstore"
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

	if err := migrations.Apply(ctx, db, "car"); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	// Reservation manager + expiry sweeper
	clk := clock.NewSystem()
	store := pgstore.New(db)
	ledger := car.NewLedger(db)
	mgr := reservation.NewManager(store, ledger, clk, reservation.WithHoldTTL(cfg.HoldTTL))
	sweeper := reservation.NewSweeper(store, ledger, clk, cfg.SweepInterval, cfg.ServiceName)
	go sweeper.Run(ctx)

	// HTTP
	router := httpx.NewRouter()
	h := &httpx.ReservationsHandler{Service: mgr}
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
	cancel() // stop sweeper
}
