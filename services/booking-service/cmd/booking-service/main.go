package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/timeslot/libs/config"
	"github.com/md-rashed-zaman/timeslot/libs/db"
	"github.com/md-rashed-zaman/timeslot/libs/httpx"
	"github.com/md-rashed-zaman/timeslot/libs/kafkax"
	otelx "github.com/md-rashed-zaman/timeslot/libs/otel"
	"github.com/md-rashed-zaman/timeslot/libs/runtime"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/extcal"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/inbox"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/schedule"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/timeslot/services/booking-service/internal/team"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseReminderOffsets(raw string, logger *slog.Logger) []time.Duration {
	var offsets []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mins, err := strconv.Atoi(part)
		if err != nil || mins <= 0 {
			logger.Warn("invalid reminder offset", "value", part)
			continue
		}
		offsets = append(offsets, time.Duration(mins)*time.Minute)
	}
	if len(offsets) == 0 {
		offsets = []time.Duration{24 * time.Hour}
	}
	return offsets
}

func isTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// meetingDeps is everything the meeting-provisioning consumer needs. It
// reacts to booking.created.v1 and booking.confirmed.v1, creates the video
// meeting and stores the link; a provisioning failure is reported through
// booking.meeting.failed.v1 and never touches the booking itself.
type meetingDeps struct {
	logger      *slog.Logger
	store       *storage.BookingStore
	eventTypes  *storage.EventTypeRepository
	outbox      *outbox.Repository
	pool        *db.Pool
	provisioner meeting.Provisioner
}

func (d meetingDeps) handle(ctx context.Context, msg kafka.Message) error {
	var payload struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.Error("invalid event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.BookingID == "" {
		d.logger.Error("missing booking_id in event", "topic", msg.Topic)
		return nil
	}

	b, err := d.store.Booking(ctx, payload.BookingID)
	if err != nil {
		var nf *model.NotFoundError
		if errors.As(err, &nf) {
			d.logger.Warn("booking gone before meeting provisioning", "booking_id", payload.BookingID)
			return nil
		}
		return err
	}
	if b.Location != model.LocationVideo || b.MeetingURL != "" {
		return nil
	}
	// Pending bookings get their meeting when the host confirms.
	if b.Status != model.BookingConfirmed {
		return nil
	}
	// One meeting per collective group; members share the primary's link.
	if b.GroupID != "" && !b.GroupPrimary {
		return nil
	}

	et, err := d.eventTypes.EventType(ctx, b.EventTypeID)
	if err != nil {
		return err
	}

	details, err := d.provisioner.CreateMeeting(ctx, meeting.Config{
		BookingID:  b.ID,
		Title:      et.Title,
		StartTime:  b.StartTime,
		Duration:   time.Duration(b.DurationMinutes) * time.Minute,
		HostID:     b.HostID,
		GuestEmail: b.GuestEmail,
	})
	if err != nil {
		d.logger.Error("meeting provisioning failed",
			"booking_id", b.ID, "provider", d.provisioner.ProviderID(), "err", err)
		d.emitFailed(ctx, b, err)
		return nil
	}
	if details.Link == "" {
		return nil
	}

	err = d.store.InTx(ctx, nil, func(tx booking.TxStore) error {
		return tx.SetMeetingURL(ctx, b.ID, details.Link)
	})
	if err != nil {
		return err
	}
	d.logger.Info("meeting link stored", "booking_id", b.ID, "provider", d.provisioner.ProviderID())
	return nil
}

func (d meetingDeps) emitFailed(ctx context.Context, b model.Booking, cause error) {
	payload, err := json.Marshal(map[string]any{
		"booking_id": b.ID,
		"host_id":    b.HostID,
		"provider":   d.provisioner.ProviderID(),
		"reason":     cause.Error(),
		"warning":    b.Location == model.LocationVideo,
	})
	if err != nil {
		d.logger.Error("meeting failure event not built", "err", err)
		return
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		d.logger.Error("meeting failure event not recorded", "err", err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := d.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     "booking.meeting.failed.v1",
		Payload:       payload,
	}); err != nil {
		d.logger.Error("meeting failure event not recorded", "err", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		d.logger.Error("meeting failure event not recorded", "err", err)
	}
}

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxRepo := outbox.NewRepository(pool)
	bookingStore := storage.NewBookingStore(pool, outboxRepo)
	scheduleRepo := storage.NewScheduleRepository(pool)
	eventTypes := storage.NewEventTypeRepository(pool)
	users := storage.NewUserRepository(pool)
	teamsRepo := storage.NewTeamRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	var rdb *redis.Client
	var holdStore *hold.Store
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB := 0
		if v, err := strconv.Atoi(config.String("REDIS_DB", "0")); err == nil && v >= 0 {
			redisDB = v
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()

		ttl := time.Duration(config.Int("HOLD_TTL_SECONDS", 300)) * time.Second
		holdStore = hold.NewStore(rdb, ttl)
		logger.Info("checkout holds enabled", "ttl", ttl.String(), "redis_addr", addr)
	} else {
		logger.Info("checkout holds disabled (no REDIS_ADDR)")
	}

	var calProviders []extcal.Provider
	if clientID := config.String("GOOGLE_CLIENT_ID", ""); clientID != "" {
		calProviders = append(calProviders, extcal.NewGoogleProvider(clientID, config.String("GOOGLE_CLIENT_SECRET", "")))
	}
	calProviders = append(calProviders, extcal.NewCalDAVProvider())
	if bp, err := extcal.NewBridgeProvider(config.String("CALENDAR_BRIDGE_ADDR", "")); err != nil {
		logger.Error("calendar bridge init failed", "err", err)
	} else if bp != nil {
		calProviders = append(calProviders, bp)
	}
	extTimeout := time.Duration(config.Int("EXTCAL_TIMEOUT_SECONDS", 3)) * time.Second
	bridge := extcal.NewBridge(users, calProviders, extTimeout, logger)

	avail := availability.NewService(scheduleRepo, bookingStore, bridge, nil)
	schedules := schedule.NewService(scheduleRepo)
	teams := team.NewCoordinator(teamsRepo, users, avail, bookingStore, nil)

	offsets := parseReminderOffsets(config.String("REMINDER_OFFSETS_MINUTES", "1440,60"), logger)
	ledgerDeps := booking.Deps{
		Store:                  bookingStore,
		EventTypes:             eventTypes,
		Users:                  users,
		Schedules:              scheduleRepo,
		External:               bridge,
		Logger:                 logger,
		DefaultReminderOffsets: offsets,
	}
	if holdStore != nil {
		ledgerDeps.Holds = holdStore
	}
	ledger := booking.NewLedger(ledgerDeps)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:    config.String("KAFKA_BROKERS", ""),
		PollEvery:  2 * time.Second,
		BatchSize:  50,
		PruneAfter: time.Duration(config.Int("OUTBOX_PRUNE_AFTER_HOURS", 168)) * time.Hour,
	})
	go outboxPublisher.Run(ctx)

	if strings.TrimSpace(config.String("MEETING_PROVIDER", "")) == "webhook" {
		deps := meetingDeps{
			logger:     logger,
			store:      bookingStore,
			eventTypes: eventTypes,
			outbox:     outboxRepo,
			pool:       pool,
			provisioner: meeting.NewWebhookProvisioner(
				config.String("MEETING_WEBHOOK_URL", ""),
				config.String("MEETING_WEBHOOK_TOKEN", ""),
			),
		}
		startConsumer := func(topic string) {
			if strings.TrimSpace(topic) == "" {
				return
			}
			c := consumer.New(logger, inboxRepo, consumer.Config{
				Brokers: config.String("KAFKA_BROKERS", ""),
				GroupID: config.String("KAFKA_GROUP_ID", "booking-service"),
				Topic:   topic,
			}, deps.handle)
			go c.Run(ctx)
		}
		startConsumer(config.String("KAFKA_CREATED_TOPIC", "booking.created.v1"))
		startConsumer(config.String("KAFKA_CONFIRMED_TOPIC", "booking.confirmed.v1"))
	} else {
		logger.Info("meeting provisioning disabled")
	}

	slotsHandler := handlers.NewSlotsHandler(avail, eventTypes, users, teams, logger)
	bookingsHandler := handlers.NewBookingsHandler(ledger, teams, eventTypes, logger)
	scheduleHandler := handlers.NewScheduleHandler(schedules, logger)
	eventTypesHandler := handlers.NewEventTypesHandler(eventTypes, logger)
	teamsHandler := handlers.NewTeamsHandler(teamsRepo, logger)
	usersHandler := handlers.NewUsersHandler(users, logger)

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/public/slots", slotsHandler.Slots)
	mux.HandleFunc("/api/v1/public/team-slots", slotsHandler.TeamSlots)
	mux.HandleFunc("/api/v1/public/event-types", eventTypesHandler.List)
	mux.HandleFunc("/api/v1/public/book", bookingsHandler.Book)
	mux.HandleFunc("/api/v1/public/bookings", bookingsHandler.GuestBooking)
	mux.HandleFunc("/api/v1/public/bookings/reschedule", bookingsHandler.GuestReschedule)
	mux.HandleFunc("/api/v1/public/bookings/cancel", bookingsHandler.GuestCancel)
	if holdStore != nil {
		holdsHandler := handlers.NewHoldsHandler(holdStore, logger)
		mux.HandleFunc("/api/v1/public/holds", holdsHandler.Acquire)
		mux.HandleFunc("/api/v1/public/holds/release", holdsHandler.Release)
	}

	mux.HandleFunc("/api/v1/hosts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			usersHandler.Create(w, r)
			return
		}
		if r.Method == http.MethodGet {
			usersHandler.Get(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/hosts/timezone", usersHandler.SetTimezone)
	mux.HandleFunc("/api/v1/hosts/calendars", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			usersHandler.ListCalendars(w, r)
			return
		}
		if r.Method == http.MethodPost {
			usersHandler.ConnectCalendar(w, r)
			return
		}
		if r.Method == http.MethodDelete {
			usersHandler.DisconnectCalendar(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/schedule", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.Weekly(w, r)
			return
		}
		if r.Method == http.MethodPut {
			scheduleHandler.SetWeekly(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/schedule/overrides", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			scheduleHandler.ListOverrides(w, r)
			return
		}
		if r.Method == http.MethodPut {
			scheduleHandler.SetOverride(w, r)
			return
		}
		if r.Method == http.MethodDelete {
			scheduleHandler.DeleteOverride(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/event-types", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			eventTypesHandler.List(w, r)
		case http.MethodPost:
			eventTypesHandler.Create(w, r)
		case http.MethodPut:
			eventTypesHandler.Update(w, r)
		case http.MethodDelete:
			eventTypesHandler.Delete(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/teams", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			teamsHandler.Get(w, r)
			return
		}
		if r.Method == http.MethodPost {
			teamsHandler.Create(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	mux.HandleFunc("/api/v1/teams/members", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			teamsHandler.Invite(w, r)
		case http.MethodPut:
			teamsHandler.Accept(w, r)
		case http.MethodDelete:
			teamsHandler.Remove(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/bookings", bookingsHandler.List)
	mux.HandleFunc("/api/v1/bookings/confirm", bookingsHandler.Confirm)
	mux.HandleFunc("/api/v1/bookings/cancel", bookingsHandler.Cancel)
	mux.HandleFunc("/api/v1/bookings/complete", bookingsHandler.Complete)
	mux.HandleFunc("/api/v1/bookings/no-show", bookingsHandler.NoShow)

	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "booking-rl"))
		rateLimitMW = rl.Middleware(logger, isTruthy(config.String("RATE_LIMIT_FAIL_OPEN", "true")))
	} else {
		rl := httpx.NewRateLimiter(limitPerMinute, time.Minute)
		rateLimitMW = rl.Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: parseList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: parseList(config.String("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS")),
			AllowedHeaders: parseList(config.String("CORS_ALLOWED_HEADERS", "Content-Type,X-Request-Id,X-Host-Id,Idempotency-Key")),
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
		rateLimitMW,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
