package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rawan10101/Carevo/internal/app"
	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/config"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// Slots are generated hourly in this window (UTC) for each seeded day.
const (
	firstHour = 9
	lastHour  = 17
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.StoreBackend == config.BackendMemory {
		logger.Fatal("seeding the memory store is pointless; set STORE_BACKEND to postgres or redis")
	}

	doctors := getInt("SEED_DOCTORS", 20)
	patients := getInt("SEED_PATIENTS", 500)
	days := getInt("SEED_DAYS", 7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer closeStore()

	slots := booking.NewSlotLedger(store, logger)
	appts := booking.NewAppointmentLedger(store, logger)

	gofakeit.Seed(time.Now().UnixNano())

	start := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	if err := seedDoctors(ctx, slots, doctors, start, days); err != nil {
		logger.Fatal("seed doctors", zap.Error(err))
	}
	logger.Info("doctors seeded", zap.Int("count", doctors), zap.Int("days", days))

	if err := seedPatients(ctx, appts, patients); err != nil {
		logger.Fatal("seed patients", zap.Error(err))
	}
	logger.Info("patients seeded", zap.Int("count", patients))
}

func seedDoctors(ctx context.Context, ledger *booking.SlotLedger, count int, start time.Time, days int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i := 0; i < count; i++ {
		d := booking.Doctor{
			ID:        uuid.NewString(),
			Name:      "Dr. " + gofakeit.Name(),
			Specialty: specialties[gofakeit.Number(0, len(specialties)-1)],
			Contact:   gofakeit.Email(),
			Slots:     daySlots(start, days),
		}
		g.Go(func() error {
			return ledger.CreateDoctor(ctx, d)
		})
	}
	return g.Wait()
}

func daySlots(start time.Time, days int) []booking.Slot {
	var slots []booking.Slot
	for day := 0; day < days; day++ {
		for h := firstHour; h < lastHour; h++ {
			t := start.AddDate(0, 0, day).Add(time.Duration(h) * time.Hour)
			slots = append(slots, booking.Slot{Time: booking.NewTimestamp(t)})
		}
	}
	return slots
}

func seedPatients(ctx context.Context, ledger *booking.AppointmentLedger, count int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for i := 0; i < count; i++ {
		p := booking.Patient{
			ID:    uuid.NewString(),
			Name:  gofakeit.Name(),
			Email: gofakeit.Email(),
		}
		g.Go(func() error {
			return ledger.CreatePatient(ctx, p)
		})
	}
	return g.Wait()
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
