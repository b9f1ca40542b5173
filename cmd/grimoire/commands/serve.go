package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/grimoire-rpg/grimoire/internal/auth"
	"github.com/grimoire-rpg/grimoire/internal/config"
	"github.com/grimoire-rpg/grimoire/internal/httpapi"
	"github.com/grimoire-rpg/grimoire/internal/printer"
	"github.com/grimoire-rpg/grimoire/internal/realtime"
	"github.com/grimoire-rpg/grimoire/internal/refdata"
	"github.com/grimoire-rpg/grimoire/internal/service"
	"github.com/grimoire-rpg/grimoire/internal/store"
)

// shutdownGrace bounds graceful shutdown before in-flight requests are cut.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Grimoire HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// documentStore is the composed storage handle: documents plus the user
// directory, backed by one adapter.
type documentStore interface {
	store.Store
	service.UserStore
	io.Closer
}

func runServe(cmd *cobra.Command, args []string) error {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(),
			[]string{fmt.Sprintf("Check %s or the GRIMOIRE_* environment variables", configPath)})
	}

	printer.Step("connecting to storage\n")
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return printer.Error("Storage unavailable", err.Error(),
			[]string{"Verify redis_url / postgres_url and that the server is reachable"})
	}
	defer st.Close()

	authenticator, err := auth.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.ServiceToken, st)
	if err != nil {
		return printer.Error("Invalid auth configuration", err.Error(), nil)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := realtime.NewBus()
	defer bus.Close()
	registry := realtime.NewRegistry()
	hub := realtime.NewHub(bus, registry, log)
	go hub.Run(ctx)

	var cache *refdata.Cache
	if cfg.Refdata.Path != "" {
		cache = refdata.NewCache(&refdata.FileSource{Path: cfg.Refdata.Path}, log)
		go cache.Run(ctx, cfg.Refdata.RefreshInterval)
	}

	sheets := service.NewSheetService(st, bus, log)
	macros := service.NewMacroService(st, bus, log)
	users := service.NewUserService(st, bus, log)

	api := httpapi.New(sheets, macros, users, authenticator, cache, httpapi.Options{CORSOrigin: cfg.CORS.Origin}, log)
	router := api.Router()

	var tutorials realtime.TutorialSearcher
	if cache != nil {
		tutorials = cache
	}
	gateway := realtime.NewGateway(authenticator, registry, tutorials, log)
	router.Handle("/ws", gateway)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()

	printer.Success("grimoire listening on %s (instance %q)\n", cfg.ListenAddr, cfg.Instance)

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return printer.Error("Server failed", err.Error(), nil)
		}
	case <-ctx.Done():
		printer.Info("shutting down...\n")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

// openStore picks the storage adapter from configuration. Postgres wins when
// both are configured.
func openStore(ctx context.Context, cfg *config.Config) (documentStore, error) {
	if cfg.PostgresURL != "" {
		pg, err := store.NewPostgresStore(cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis_url: %w", err)
	}
	rs, err := store.NewRedisStore(opts, cfg.Instance)
	if err != nil {
		return nil, err
	}
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return rs, nil
}
