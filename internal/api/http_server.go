package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/export"
	"turnero/internal/metrics"
	"turnero/internal/models"
	"turnero/internal/service"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// Services are the engine entry points served over HTTP.
type Services struct {
	Calendar     *service.CalendarService
	Availability *service.AvailabilityService
	Booking      *service.BookingService
	Cancellation *service.CancellationService
	Exporter     *export.Exporter
}

// HTTPServer is the public JSON API used by booking pages and owner dashboards.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	verifier *IdentityVerifier
	limiter  *rateLimiter
	handler  http.Handler
	server   *http.Server
	log      zerolog.Logger
}

type identityHandle func(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity)

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		verifier: NewIdentityVerifier(cfg.Auth),
		limiter:  newRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		log:      zerolog.Nop(),
	}
	if logger != nil {
		s.log = logger.With().Str("component", "http").Logger()
	}

	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         600,
	})

	s.handler = s.logging(s.rateLimit(c.Handler(s.routes())))
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes() *httprouter.Router {
	r := httprouter.New()

	r.GET("/healthz", s.public("GET /healthz", s.handleHealth))

	r.GET("/api/v1/businesses/:business", s.public("GET /businesses/:business", s.handleGetBusiness))
	r.GET("/api/v1/businesses/:business/resources", s.public("GET /businesses/:business/resources", s.handleListResources))
	r.GET("/api/v1/businesses/:business/services", s.public("GET /businesses/:business/services", s.handleListServices))
	r.GET("/api/v1/businesses/:business/resources/:resource/slots", s.public("GET /businesses/:business/resources/:resource/slots", s.handleSlots))

	r.POST("/api/v1/businesses/:business/bookings", s.client("POST /businesses/:business/bookings", s.handleBook))
	r.GET("/api/v1/me/appointments", s.client("GET /me/appointments", s.handleMyAppointments))
	r.DELETE("/api/v1/me/appointments/:appointment", s.client("DELETE /me/appointments/:appointment", s.handleClientCancel))

	r.POST("/api/v1/businesses", s.owner("POST /businesses", s.handleCreateBusiness))
	r.PUT("/api/v1/businesses/:business", s.owner("PUT /businesses/:business", s.handleUpdateBusiness))
	r.POST("/api/v1/businesses/:business/resources", s.owner("POST /businesses/:business/resources", s.handleCreateResource))
	r.PUT("/api/v1/businesses/:business/resources/:resource", s.owner("PUT /businesses/:business/resources/:resource", s.handleUpdateResource))
	r.POST("/api/v1/businesses/:business/services", s.owner("POST /businesses/:business/services", s.handleCreateService))
	r.PUT("/api/v1/businesses/:business/services/:service", s.owner("PUT /businesses/:business/services/:service", s.handleUpdateService))
	r.GET("/api/v1/businesses/:business/agenda", s.owner("GET /businesses/:business/agenda", s.handleAgenda))
	r.GET("/api/v1/businesses/:business/agenda/export", s.owner("GET /businesses/:business/agenda/export", s.handleExport))
	r.GET("/api/v1/businesses/:business/appointments", s.owner("GET /businesses/:business/appointments", s.handleAgendaRange))
	r.POST("/api/v1/businesses/:business/resources/:resource/blocks", s.owner("POST /businesses/:business/resources/:resource/blocks", s.handleBlockSlot))
	r.PUT("/api/v1/businesses/:business/resources/:resource/days/:date/block", s.owner("PUT /businesses/:business/resources/:resource/days/:date/block", s.handleBlockDay))
	r.DELETE("/api/v1/businesses/:business/resources/:resource/days/:date/block", s.owner("DELETE /businesses/:business/resources/:resource/days/:date/block", s.handleUnblockDay))
	r.POST("/api/v1/businesses/:business/appointments/:appointment/confirm", s.owner("POST /businesses/:business/appointments/:appointment/confirm", s.handleConfirm))
	r.DELETE("/api/v1/businesses/:business/appointments/:appointment", s.owner("DELETE /businesses/:business/appointments/:appointment", s.handleOwnerCancel))

	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SweepRateLimits forgets idle per-IP buckets.
func (s *HTTPServer) SweepRateLimits() int {
	return s.limiter.sweep()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Route wrappers

func (s *HTTPServer) public(route string, h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.IncHTTP(route)
		h(w, r, ps)
	}
}

func (s *HTTPServer) client(route string, h identityHandle) httprouter.Handle {
	return s.authenticated(route, models.RoleClient, h)
}

func (s *HTTPServer) owner(route string, h identityHandle) httprouter.Handle {
	return s.authenticated(route, models.RoleOwner, h)
}

func (s *HTTPServer) authenticated(route, role string, h identityHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.IncHTTP(route)

		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if id.Role != role {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		h(w, r, ps, id)
	}
}

// Middleware

func (s *HTTPServer) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		ev := s.log.Info()
		if recorder.status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(remoteIP(r)) {
			writeError(w, http.StatusTooManyRequests, domain.UserMessage(domain.ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Public handlers

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleGetBusiness(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := s.business(r.Context(), ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) handleListResources(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := s.business(r.Context(), ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resources, err := s.svc.Calendar.ListResources(r.Context(), b.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	active := make([]*models.Resource, 0, len(resources))
	for _, res := range resources {
		if res.Active {
			active = append(active, res)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resources": active})
}

func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := s.business(r.Context(), ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	services, err := s.svc.Calendar.ListServices(r.Context(), b.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	active := make([]*models.Service, 0, len(services))
	for _, svc := range services {
		if svc.Active {
			active = append(active, svc)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"services": active})
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	b, err := s.business(r.Context(), ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resourceID, err := parseID("resource", ps.ByName("resource"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", r.URL.Query().Get("date"), b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	serviceID, err := optionalID("service", r.URL.Query().Get("service"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	day, err := s.svc.Availability.DaySlots(r.Context(), b.ID, resourceID, date, serviceID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// Client handlers

type bookingBody struct {
	ResourceID int64               `json:"resource_id"`
	Date       string              `json:"date"`
	Start      string              `json:"start"`
	ServiceID  int64               `json:"service_id"`
	Companions []service.Companion `json:"companions"`
	Comment    string              `json:"comment"`
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.business(r.Context(), ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body bookingBody
	if err := decodeBody(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", body.Date, b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	start, err := models.ParseClock(body.Start)
	if err != nil {
		s.writeDomainError(w, r, domain.Invalid("start", err.Error()))
		return
	}

	res, err := s.svc.Booking.Book(r.Context(), service.BookingRequest{
		BusinessID: b.ID,
		ResourceID: body.ResourceID,
		Date:       date,
		Start:      start,
		ServiceID:  body.ServiceID,
		Client:     service.ClientIdentity{ID: id.ID, Name: id.Name, Contact: id.Contact},
		Companions: body.Companions,
		Comment:    body.Comment,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleMyAppointments(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id *Identity) {
	appts, err := s.svc.Availability.ClientAppointments(r.Context(), id.ID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": appts})
}

func (s *HTTPServer) handleClientCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	actor := service.Actor{Kind: models.RoleClient, ID: id.ID}
	res, err := s.svc.Cancellation.Cancel(r.Context(), ps.ByName("appointment"), actor, r.URL.Query().Get("reason"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Owner handlers

func (s *HTTPServer) handleCreateBusiness(w http.ResponseWriter, r *http.Request, _ httprouter.Params, id *Identity) {
	var b models.Business
	if err := decodeBody(r, &b); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	b.ID = 0
	b.OwnerID = id.ID
	if err := s.svc.Calendar.CreateBusiness(r.Context(), &b); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &b)
}

func (s *HTTPServer) handleUpdateBusiness(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	current, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var b models.Business
	if err := decodeBody(r, &b); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	b.ID = current.ID
	b.OwnerID = current.OwnerID
	if b.Slug == "" {
		b.Slug = current.Slug
	}
	if err := s.svc.Calendar.UpdateBusiness(r.Context(), &b); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &b)
}

func (s *HTTPServer) handleCreateResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var res models.Resource
	if err := decodeBody(r, &res); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res.ID = 0
	res.BusinessID = b.ID
	if err := s.svc.Calendar.CreateResource(r.Context(), &res); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &res)
}

func (s *HTTPServer) handleUpdateResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resourceID, err := parseID("resource", ps.ByName("resource"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var res models.Resource
	if err := decodeBody(r, &res); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res.ID = resourceID
	res.BusinessID = b.ID
	if err := s.svc.Calendar.UpdateResource(r.Context(), &res); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &res)
}

func (s *HTTPServer) handleCreateService(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var svc models.Service
	if err := decodeBody(r, &svc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	svc.ID = 0
	svc.BusinessID = b.ID
	if err := s.svc.Calendar.CreateService(r.Context(), &svc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, &svc)
}

func (s *HTTPServer) handleUpdateService(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	serviceID, err := parseID("service", ps.ByName("service"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var svc models.Service
	if err := decodeBody(r, &svc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	svc.ID = serviceID
	svc.BusinessID = b.ID
	if err := s.svc.Calendar.UpdateService(r.Context(), &svc); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &svc)
}

func (s *HTTPServer) handleAgenda(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", r.URL.Query().Get("date"), b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resourceID, err := optionalID("resource", r.URL.Query().Get("resource"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	days, err := s.svc.Availability.Agenda(r.Context(), b.ID, date, resourceID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"date": date.Format(models.DateLayout), "resources": days})
}

func (s *HTTPServer) handleAgendaRange(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	from, to, err := parseRange(r, b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	appts, err := s.svc.Availability.AgendaRange(r.Context(), b.ID, from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"appointments": appts})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	if s.svc.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "export is not configured")
		return
	}
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	from, to, err := parseRange(r, b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	res, err := s.svc.Exporter.Export(r.Context(), b.ID, from, to)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type blockBody struct {
	Date    string `json:"date"`
	Start   string `json:"start"`
	Comment string `json:"comment"`
}

func (s *HTTPServer) handleBlockSlot(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	resourceID, err := parseID("resource", ps.ByName("resource"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body blockBody
	if err := decodeBody(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	date, err := parseDate("date", body.Date, b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	start, err := models.ParseClock(body.Start)
	if err != nil {
		s.writeDomainError(w, r, domain.Invalid("start", err.Error()))
		return
	}

	appt, err := s.svc.Booking.BlockSlot(r.Context(), b.ID, resourceID, date, start, body.Comment)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (s *HTTPServer) handleBlockDay(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, resourceID, date, ok := s.dayParams(w, r, ps, id)
	if !ok {
		return
	}
	res, err := s.svc.Booking.BlockDay(r.Context(), b.ID, resourceID, date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleUnblockDay(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, resourceID, date, ok := s.dayParams(w, r, ps, id)
	if !ok {
		return
	}
	removed, err := s.svc.Booking.UnblockDay(r.Context(), b.ID, resourceID, date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *HTTPServer) dayParams(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) (*models.Business, int64, time.Time, bool) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, 0, time.Time{}, false
	}
	resourceID, err := parseID("resource", ps.ByName("resource"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, 0, time.Time{}, false
	}
	date, err := parseDate("date", ps.ByName("date"), b)
	if err != nil {
		s.writeDomainError(w, r, err)
		return nil, 0, time.Time{}, false
	}
	return b, resourceID, date, true
}

type confirmBody struct {
	Version int64 `json:"version"`
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	var body confirmBody
	if err := decodeBody(r, &body); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	appt, err := s.svc.Booking.Confirm(r.Context(), b.ID, ps.ByName("appointment"), body.Version)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *HTTPServer) handleOwnerCancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params, id *Identity) {
	b, err := s.ownedBusiness(r.Context(), id, ps.ByName("business"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	actor := service.Actor{Kind: models.RoleOwner, ID: id.ID, BusinessID: b.ID}
	res, err := s.svc.Cancellation.Cancel(r.Context(), ps.ByName("appointment"), actor, r.URL.Query().Get("reason"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Helpers

// business resolves a path segment that is either a numeric id or a slug.
func (s *HTTPServer) business(ctx context.Context, ref string) (*models.Business, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.svc.Calendar.GetBusiness(ctx, id)
	}
	return s.svc.Calendar.GetBusinessBySlug(ctx, ref)
}

func (s *HTTPServer) ownedBusiness(ctx context.Context, id *Identity, ref string) (*models.Business, error) {
	b, err := s.business(ctx, ref)
	if err != nil {
		return nil, err
	}
	if id.BusinessID != b.ID || (b.OwnerID != "" && b.OwnerID != id.ID) {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, code, domain.UserMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotTaken),
		errors.Is(err, domain.ErrRuleConflict),
		errors.Is(err, domain.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func parseID(field, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Invalid(field, "must be a positive integer")
	}
	return id, nil
}

func optionalID(field, raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return parseID(field, raw)
}

func parseDate(field, raw string, b *models.Business) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, domain.Invalid(field, "is required")
	}
	d, err := models.ParseDate(raw, b.Location())
	if err != nil {
		return time.Time{}, domain.Invalid(field, err.Error())
	}
	return d, nil
}

func parseRange(r *http.Request, b *models.Business) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"), b)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate("to", q.Get("to"), b)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
