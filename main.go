package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"gigflow/chat"
	"gigflow/config"
	"gigflow/db"
	"gigflow/identity"
	"gigflow/jobs"
	"gigflow/ledger"
	"gigflow/live"
	"gigflow/logger"
	"gigflow/middleware"
	"gigflow/mq"
	"gigflow/notify"
	"gigflow/orchestrator"
	"gigflow/ratelim"
	"gigflow/rdx"
	"gigflow/routes"
	"gigflow/store"
	"gigflow/store/memstore"
)

// stack is everything the HTTP layer needs from the chosen storage mode.
type stack struct {
	backends    orchestrator.Backends
	inbox       notify.Box
	chats       jobs.ChatLister
	broker      mq.Broker
	idempotency middleware.IdempotencyStore
}

func memoryStack() stack {
	led := ledger.NewMemory()
	chats := chat.NewMemory()
	inbox := notify.NewMemory()
	broker := mq.NewLocal()
	return stack{
		backends:    orchestrator.MemoryBackends(memstore.New(), led, chats, inbox, broker),
		inbox:       inbox,
		chats:       chats,
		broker:      broker,
		idempotency: middleware.NewMemoryIdempotency(),
	}
}

func mongoStack(ctx context.Context, cfg config.Config) (stack, error) {
	if err := db.Init(ctx, cfg.MongoURI, cfg.MongoDB); err != nil {
		return stack{}, err
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		return stack{}, err
	}
	if err := rdx.Init(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
		return stack{}, err
	}

	broker := mq.NewRedis(rdx.Conn)
	led := ledger.NewWallet(db.AccountsCollection, db.TransactionCollection, db.JournalCollection,
		rdx.NewLocker(rdx.Conn, 10*time.Second))
	chats := chat.NewRooms(db.ChatsCollection)
	inbox := notify.NewInbox(db.NotificationsCollection, broker)
	return stack{
		backends: orchestrator.Backends{
			Jobs:        store.NewMongoJobs(db.JobsCollection),
			Applicants:  store.NewMongoApplicants(db.ApplicantsCollection),
			Invitations: store.NewMongoInvitations(db.InvitationsCollection),
			Submissions: store.NewMongoSubmissions(db.SubmissionsCollection),
			Ratings:     store.NewMongoRatings(db.RatingsCollection),
			Ledger:      led,
			Chats:       chats,
			Notifier:    inbox,
			Events:      broker,
		},
		inbox:       inbox,
		chats:       chats,
		broker:      broker,
		idempotency: middleware.NewMongoIdempotency(db.IdempotencyCollection),
	}, nil
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		st  stack
		err error
	)
	if cfg.Store == "memory" {
		log.Warn().Msg("running on in-memory storage; nothing survives a restart")
		st = memoryStack()
	} else {
		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		st, err = mongoStack(initCtx, cfg)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("storage init failed")
		}
	}

	hub := live.NewHub()
	go hub.Run()
	go live.Relay(ctx, st.broker, hub)

	rateLimiter := ratelim.NewRateLimiter(10, 20)
	sweepStop := make(chan struct{})
	go rateLimiter.SweepEvery(time.Minute, sweepStop)

	router := httprouter.New()
	routes.RoutesWrapper(router, routes.Deps{
		Handlers: &jobs.Handlers{
			Jobs:      orchestrator.Build(st.backends, cfg.Retry),
			Ledger:    st.backends.Ledger,
			Inbox:     st.inbox,
			Chats:     st.chats,
			PublicURL: cfg.PublicURL,
		},
		Auth:           identity.NewVerifier(cfg.JWTSecret),
		RateLimiter:    rateLimiter,
		Idempotency:    st.idempotency,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replayed"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           middleware.Logging(middleware.SecurityHeaders(corsHandler)),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	server.RegisterOnShutdown(func() {
		log.Info().Msg("stopping live hub")
		hub.Stop()
		close(sweepStop)
	})

	go func() {
		log.Info().Str("addr", cfg.Port).Str("store", cfg.Store).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := db.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mongo disconnect failed")
	}
	if rdx.Conn != nil {
		_ = rdx.Conn.Close()
	}
	log.Info().Msg("server stopped")
}
