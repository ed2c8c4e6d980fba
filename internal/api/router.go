package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Rawan10101/Carevo/internal/booking"
	"github.com/Rawan10101/Carevo/internal/identity"
)

// BookingService is the patient-facing side of *booking.Service.
type BookingService interface {
	ListFreeSlots(ctx context.Context, doctorID string) ([]booking.Slot, error)
	Book(ctx context.Context, req booking.BookingRequest) (*booking.Appointment, error)
	RecoverBooking(ctx context.Context, req booking.BookingRequest) (*booking.Appointment, error)
	Cancel(ctx context.Context, patientID, appointmentID string) (*booking.Appointment, error)
	Reschedule(ctx context.Context, patientID, appointmentID string, newSlot booking.Timestamp) (*booking.Appointment, error)
	ListAppointments(ctx context.Context, patientID string) ([]booking.AppointmentView, error)
}

// SlotManager is the doctor-facing side, served by *booking.SlotLedger.
type SlotManager interface {
	AddSlot(ctx context.Context, doctorID string, t booking.Timestamp) (*booking.Slot, error)
	RemoveSlot(ctx context.Context, doctorID string, t booking.Timestamp) error
	BookedSlots(ctx context.Context, doctorID string) ([]booking.Slot, error)
}

type RouterConfig struct {
	Service        BookingService
	Slots          SlotManager
	Store          Pinger
	Backend        string
	Logger         *zap.Logger
	Env            string
	Version        string
	RequestTimeout time.Duration
	IdentityHeader string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Store, cfg.Backend, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(identity.Middleware(cfg.IdentityHeader))

		r.Route("/doctors/{doctorID}", func(r chi.Router) {
			r.Get("/slots", listFreeSlotsHandler(cfg.Service))
			r.Post("/slots", addSlotHandler(cfg.Slots))
			r.Delete("/slots", removeSlotHandler(cfg.Slots))
			r.Get("/bookings", bookedSlotsHandler(cfg.Slots))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", bookHandler(cfg.Service))
			r.Get("/", listAppointmentsHandler(cfg.Service))
			r.Post("/recover", recoverBookingHandler(cfg.Service))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Service))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
		})
	})

	return r
}
