// Command clip-tender bridges a Twitch channel's chat to a local clip-playback
// device. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Manages the channel's OAuth credential (PKCE flow, proactive refresh).
//   - Ingests chat and raid events from EventSub and IRC, deduplicated into a
//     single stream feeding the command router.
//   - Drives the playback engine and exposes a control HTTP API with
//     /healthz, /readyz, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/clip-tender/auth"
	"github.com/onnwee/clip-tender/commands"
	"github.com/onnwee/clip-tender/config"
	"github.com/onnwee/clip-tender/db"
	"github.com/onnwee/clip-tender/events"
	"github.com/onnwee/clip-tender/player"
	"github.com/onnwee/clip-tender/server"
	"github.com/onnwee/clip-tender/telemetry"
	"github.com/onnwee/clip-tender/twitchapi"
)

const lastPlayedKey = "last_played_clip"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("clip-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Credential lifecycle: persistent store, OAuth client, manager.
	store := db.NewCredentialStore(database)
	oauthClient := &twitchapi.OAuthClient{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.TwitchRedirectURI,
		Scopes:       cfg.TwitchScopes,
	}
	manager := &auth.Manager{
		Store: store,
		OAuth: oauthClient,
		OnComplete: func(c auth.Completion) {
			if c.Err != nil {
				slog.Warn("authorization flow failed", slog.Any("err", c.Err), slog.String("component", "auth"))
				return
			}
			slog.Info("authorization complete", slog.String("user", c.Username), slog.String("component", "auth"))
		},
	}
	helix := &twitchapi.HelixClient{
		ClientID: cfg.TwitchClientID,
		Tokens:   manager,
		// Metadata lookups fall back to a client-credentials token until the
		// channel's OAuth flow has completed.
		AppTokens: &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret},
	}
	manager.Identity = helix
	manager.StartRefresher(ctx, 5*time.Minute)

	// Stale pending-flow cleanup.
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PruneOAuthStates(ctx, database, 15*time.Minute); err != nil {
					slog.Warn("pending flow prune failed", slog.Any("err", err))
				}
			}
		}
	}()

	// Playback engine with durable last-played history.
	engine := player.NewEngine(player.NewHTTPDevice(cfg.PlayerDeviceURL), cfg.QueueSize, cfg.EndBuffer, cfg.SettleInterval)
	engine.Record = func(rctx context.Context, clip *twitchapi.ClipData) {
		if err := db.RecordPlayedClip(rctx, database, clip.ID, clip.Title, clip.Broadcaster.DisplayName, clip.Duration); err != nil {
			slog.Warn("failed to record played clip", slog.Any("err", err), slog.String("component", "player"))
		}
		if b, err := json.Marshal(clip); err == nil {
			if err := db.SetKV(rctx, database, lastPlayedKey, string(b)); err != nil {
				slog.Warn("failed to persist last played clip", slog.Any("err", err), slog.String("component", "player"))
			}
		}
	}
	if v, err := db.GetKV(ctx, database, lastPlayedKey); err == nil && v != "" {
		var clip twitchapi.ClipData
		if err := json.Unmarshal([]byte(v), &clip); err == nil {
			engine.SeedLastPlayed(&clip)
		}
	}
	go engine.Run(ctx)

	// Event ingestion: IRC + EventSub feeding the command router.
	gate := commands.NewGate(cfg.ApproveWords, cfg.DenyWords)
	ircSource := &events.IRCSource{
		Channel:     cfg.TwitchChannel,
		BotUsername: cfg.TwitchBotUsername,
		Token:       manager.GetValidAccessToken,
	}
	announcer := events.NewAnnouncer(ircSource)
	router := commands.NewRouter(cfg, helix, gate, engine, announcer)

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Warn("chat ingestion disabled", slog.Any("err", err))
	} else {
		sources := []events.Source{ircSource}
		if cfg.TwitchChannelID != "" {
			sources = append(sources, &events.EventSubSource{
				Subscribe: func(sctx context.Context, sessionID string) error {
					_, _, _, userID, err := store.GetTokens(sctx)
					if err != nil || userID == "" {
						userID = cfg.TwitchChannelID
					}
					if err := helix.CreateEventSubSubscription(sctx, "channel.chat.message", "1",
						map[string]string{"broadcaster_user_id": cfg.TwitchChannelID, "user_id": userID}, sessionID); err != nil {
						return err
					}
					return helix.CreateEventSubSubscription(sctx, "channel.raid", "1",
						map[string]string{"to_broadcaster_user_id": cfg.TwitchChannelID}, sessionID)
				},
			})
		} else {
			slog.Info("eventsub disabled (TWITCH_CHANNEL_ID not set); using irc only")
		}
		coordinator := &events.Coordinator{
			Sources:     sources,
			Handler:     router.HandleEvent,
			DedupWindow: cfg.DedupWindow,
		}
		go coordinator.Run(ctx)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/metrics/oauth/player control)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handlers := server.NewHandlers(database, manager, engine, gate, router, helix)
	go func() {
		if err := server.Start(ctx, handlers, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
