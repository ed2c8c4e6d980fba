package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rawan10101/Carevo/internal/app"
	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/config"
	"github.com/Rawan10101/Carevo/internal/docstore"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	// HotSlots narrows bookings to this many slots so workers collide.
	HotSlots int
}

type target struct {
	DoctorID string
	SlotTime time.Time
}

type booked struct {
	PatientID     string
	AppointmentID string
}

type DataPool struct {
	Patients []string
	Targets  []target

	mu     sync.Mutex
	booked []booked
}

func (dp *DataPool) AddBooking(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.booked = append(dp.booked, b)
}

// TakeBooking removes and returns a random booking so it is cancelled once.
func (dp *DataPool) TakeBooking(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.booked) == 0 {
		return booked{}, false
	}
	i := rng.Intn(len(dp.booked))
	b := dp.booked[i]
	dp.booked[i] = dp.booked[len(dp.booked)-1]
	dp.booked = dp.booked[:len(dp.booked)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err == nil && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case err == nil && status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		i := len(latencies) * p / 100
		if i >= len(latencies) {
			i = len(latencies) - 1
		}
		return latencies[i]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Book      OperationMetrics
	Cancel    OperationMetrics
	FreeSlots OperationMetrics
	List      OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	logger  *zap.Logger
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger, err := app.NewLogger(baseCfg.Env, baseCfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, closeStore, err := app.OpenStore(ctx, baseCfg, logger)
	if err != nil {
		logger.Fatal("store connection error", zap.Error(err))
	}
	defer closeStore()

	dataPool, err := loadDataPool(ctx, store, cfg, logger)
	if err != nil {
		logger.Fatal("load data pool", zap.Error(err))
	}
	logger.Info("data pool loaded",
		zap.Int("patients", len(dataPool.Patients)),
		zap.Int("slots", len(dataPool.Targets)),
	)

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
	sim.Run()
	sim.PrintReport()
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 1000),
		HotSlots:     getInt("SIM_HOT_SLOTS", 0),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadDataPool reads ids straight from the store; the api exposes no
// listing of doctors or patients.
func loadDataPool(ctx context.Context, store docstore.Store, cfg SimConfig, logger *zap.Logger) (*DataPool, error) {
	slots := booking.NewSlotLedger(store, logger)
	appts := booking.NewAppointmentLedger(store, logger)

	doctors, err := slots.AllDoctors(ctx)
	if err != nil {
		return nil, err
	}
	patients, err := appts.AllPatients(ctx)
	if err != nil {
		return nil, err
	}

	dp := &DataPool{}
	for i, p := range patients {
		if i >= cfg.PatientLimit {
			break
		}
		dp.Patients = append(dp.Patients, p.ID)
	}

	now := time.Now()
	for _, d := range doctors {
		for _, s := range d.Slots {
			if !s.IsBooked && !s.Time.Before(now) {
				dp.Targets = append(dp.Targets, target{DoctorID: d.ID, SlotTime: s.Time.Time()})
			}
		}
	}
	if cfg.HotSlots > 0 && cfg.HotSlots < len(dp.Targets) {
		rand.Shuffle(len(dp.Targets), func(i, j int) { dp.Targets[i], dp.Targets[j] = dp.Targets[j], dp.Targets[i] })
		dp.Targets = dp.Targets[:cfg.HotSlots]
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dp.Targets) == 0 {
		return nil, fmt.Errorf("no free future slots loaded")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation",
		zap.Duration("duration", s.config.Duration),
		zap.Int("workers", s.config.Workers),
	)

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		g.Go(func() error {
			s.worker(ctx, rand.New(rand.NewSource(seed)))
			return nil
		})
	}
	_ = g.Wait()
	s.logger.Info("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, rng *rand.Rand) {
	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBook(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doFreeSlots(ctx, rng)
		default:
			s.doList(ctx, rng)
		}
	}
}

func (s *Simulator) call(ctx context.Context, method, path, userID string, body any, out any) (int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, &buf)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, nil
}

func (s *Simulator) doBook(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	var resp struct {
		ID string `json:"id"`
	}
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments", patientID, map[string]any{
		"doctor_id":   t.DoctorID,
		"slot_time":   t.SlotTime,
		"clinic_id":   "sim",
		"clinic_name": "Simulation Clinic",
	}, &resp)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Book.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated && resp.ID != "" {
		s.pool.AddBooking(booked{PatientID: patientID, AppointmentID: resp.ID})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeBooking(rng)
	if !ok {
		return
	}

	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/appointments/"+b.AppointmentID+"/cancel", b.PatientID, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Cancel.Record(time.Since(start), status, err)
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	t := s.pool.Targets[rng.Intn(len(s.pool.Targets))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/doctors/"+t.DoctorID+"/slots", patientID, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.FreeSlots.Record(time.Since(start), status, err)
}

func (s *Simulator) doList(ctx context.Context, rng *rand.Rand) {
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, "/appointments", patientID, nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.List.Record(time.Since(start), status, err)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	if s.config.HotSlots > 0 {
		fmt.Printf("Hot slots: %d\n", len(s.pool.Targets))
	}
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Free slots", &s.metrics.FreeSlots)
	printOperationReport("List appointments", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
