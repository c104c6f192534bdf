package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"interviewroom/internal/agents"
	"interviewroom/internal/api"
	"interviewroom/internal/auth"
	"interviewroom/internal/config"
	"interviewroom/internal/database"
	"interviewroom/internal/hub"
	"interviewroom/internal/phase"
	"interviewroom/internal/scheduler"
	"interviewroom/internal/session"
	"interviewroom/internal/websocket"
	pkgdatabase "interviewroom/pkg/database"
	"interviewroom/pkg/interfaces"
)

// Application coordinates all system components
// Component initialization follows strict dependency order:
// Database → Collaborators → Sessions → Registry → Hub → Scheduler → API → HTTP
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	sessions   *session.Manager
	registry   *websocket.Registry
	hub        *hub.Hub
	scheduler  *scheduler.Scheduler
	apiServer  *api.Server
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener
}

// DatabaseConfig maps the runtime configuration onto the storage layer's
func DatabaseConfig(cfg *config.Config) *pkgdatabase.Config {
	dbConfig := pkgdatabase.DefaultConfig()
	dbConfig.DatabasePath = cfg.Database.Path
	dbConfig.MaxConnections = cfg.Database.MaxConnections
	dbConfig.WriteTimeout = cfg.Database.Timeout
	dbConfig.MigrationsPath = cfg.Database.MigrationsPath
	return dbConfig
}

// NewApplication builds every component; nothing is listening until Start
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Database and schema
	dbManager, err := database.NewManager(DatabaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := dbManager.Migrate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	// STEP 2: Session registry over the collaborators
	opts, err := sessionOptions(cfg)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}
	sessions, err := session.NewManager(collaborators(cfg, dbManager), opts)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize session manager: %w", err)
	}

	// STEP 3: Gateway
	tokens, err := inviteValidator(cfg)
	if err != nil {
		_ = dbManager.Close()
		return nil, err
	}
	registry := websocket.NewRegistry()
	messageHub, err := hub.NewHub(sessions, registry, tokens, hub.Config{
		RateLimit:  cfg.Interview.EventsPerMinute,
		RateWindow: time.Minute,
	})
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize hub: %w", err)
	}
	wsHandler := websocket.NewHandler(registry, messageHub, websocket.HandlerConfig{
		ReadLimit:      cfg.WebSocket.MaxMessageBytes,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.ReadTimeout,
		WriteBuffer:    cfg.WebSocket.BufferSize,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// STEP 4: Retention sweep
	sweeper, err := scheduler.New(messageHub, cfg.Interview.SweepSchedule, cfg.Interview.Retention)
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("invalid sweep schedule: %w", err)
	}

	// STEP 5: HTTP surface
	apiServer := api.NewServer(sessions, dbManager, messageHub)
	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		sessions:   sessions,
		registry:   registry,
		hub:        messageHub,
		scheduler:  sweeper,
		apiServer:  apiServer,
		handler:    mux,
		httpServer: httpServer,
	}, nil
}

func sessionOptions(cfg *config.Config) (session.Options, error) {
	iv := cfg.Interview
	machine, err := phase.New(phase.Thresholds(iv.Thresholds()), iv.SafetyCap)
	if err != nil {
		return session.Options{}, fmt.Errorf("invalid phase configuration: %w", err)
	}
	return session.Options{
		Machine:             machine,
		Policy:              session.NewProbabilityPolicy(iv.ReassuranceProbability, iv.ReassuranceSeed, nil),
		CollaboratorTimeout: iv.CollaboratorTimeout,
		MailboxSize:         iv.MailboxSize,
		MaxPendingAudio:     iv.MaxPendingAudioBytes,
		DefaultLanguage:     iv.DefaultLanguage,
		VoiceID:             iv.VoiceID,
	}, nil
}

// collaborators selects the OpenAI agents when a key is configured and the
// offline agents otherwise; storage is always the SQLite manager
func collaborators(cfg *config.Config, db *database.Manager) interfaces.Collaborators {
	c := interfaces.Collaborators{
		Persistence: db,
		Context:     db,
	}
	if cfg.OpenAI.APIKey == "" {
		log.Println("No OpenAI API key configured, using offline interview agents")
		offline := agents.Offline{}
		c.Transcriber = offline
		c.Interviewer = offline
		c.Synthesizer = offline
		c.Quick = offline
		c.Macro = offline.Macro()
		c.Reports = offline
		return c
	}

	client := agents.NewClient(agents.Config{
		APIKey:             cfg.OpenAI.APIKey,
		BaseURL:            cfg.OpenAI.BaseURL,
		ChatModel:          cfg.OpenAI.ChatModel,
		TranscriptionModel: cfg.OpenAI.TranscriptionModel,
		SpeechModel:        cfg.OpenAI.SpeechModel,
	})
	c.Transcriber = client
	c.Interviewer = client
	c.Synthesizer = client
	c.Quick = client
	c.Macro = client.Macro()
	c.Reports = client
	return c
}

func inviteValidator(cfg *config.Config) (interfaces.TokenValidator, error) {
	if cfg.Auth.InviteSecret == "" {
		log.Println("WARNING: no invite secret configured, join-interview tokens are not verified")
		return nil, nil
	}
	invites, err := auth.NewInvites(cfg.Auth.InviteSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize invites: %w", err)
	}
	return invites, nil
}

// Start begins background work and serves HTTP
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting interview room on %s", app.httpServer.Addr)

	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}
	if err := app.scheduler.Start(); err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.scheduler.Stop()
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Interview room started successfully")
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → Scheduler → Hub → Sessions → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down interview room")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	app.scheduler.Stop()
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Hub shutdown error: %v", err)
	}
	if err := app.sessions.Shutdown(ctx); err != nil {
		log.Printf("Session shutdown error: %v", err)
	}
	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Interview room shutdown complete")
	return nil
}

// Handler returns the HTTP handler serving /api, /health and /ws
func (app *Application) Handler() http.Handler {
	return app.handler
}

// GetAddr returns the bound address once started, the configured one before
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
