package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nutrilog/gatekeeper/admin"
	"github.com/nutrilog/gatekeeper/auth/signed"
	"github.com/nutrilog/gatekeeper/auth/token"
	"github.com/nutrilog/gatekeeper/config"
	gatekeeperhttp "github.com/nutrilog/gatekeeper/http"
	"github.com/nutrilog/gatekeeper/logger"
	"github.com/nutrilog/gatekeeper/storage"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownGrace = 10 * time.Second

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "Start a gatekeeper server",
		Long: `
Usage: gatekeeper server --config=/etc/gatekeeper/config.hcl

  Starts the listeners defined in the configuration file. A "public"
  listener serves the bearer-gated API; an "admin" listener serves the
  dual-factor-gated mutation surface. Define one or both.
`,
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := buildLogger(conf)
	defer log.Close()

	backend, err := storage.NewBackend(conf.Storage.Config(), log)
	if err != nil {
		return fmt.Errorf("failed to create storage backend: %w", err)
	}

	auth := conf.Auth
	if auth == nil {
		auth = &config.AuthBlock{}
	}

	var servers []*http.Server

	if l := conf.Listener("admin"); l != nil {
		handler, err := buildAdminHandler(auth, backend, log)
		if err != nil {
			return err
		}
		servers = append(servers, &http.Server{Addr: l.Address, Handler: handler})
		log.Info("admin listener configured", logger.String("address", l.Address))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if l := conf.Listener("public"); l != nil {
		handler, err := buildPublicHandler(ctx, auth, backend, log)
		if err != nil {
			return err
		}
		servers = append(servers, &http.Server{Addr: l.Address, Handler: handler})
		log.Info("public listener configured", logger.String("address", l.Address))
	}

	group, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		group.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	log.Info("gatekeeper started")
	return group.Wait()
}

func buildLogger(conf *config.Config) logger.Logger {
	logConf := &logger.Config{
		Level:      logger.ParseLevel(conf.LogLevel),
		JSONFormat: conf.LogFormat == "json",
		Output:     os.Stdout,
	}
	if conf.LogFile != "" {
		logConf.FileConfig = &logger.FileConfig{
			Filename:   conf.LogFile,
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
		}
	}
	return logger.New(logConf)
}

func buildAdminHandler(auth *config.AuthBlock, backend storage.Backend, log logger.Logger) (http.Handler, error) {
	secretEnv := auth.AdminSecretEnv
	if secretEnv == "" {
		secretEnv = config.DefaultAdminSecretEnv
	}
	secret, err := admin.SecretFromEnv(os.Getenv(secretEnv))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", secretEnv, err)
	}

	gate, err := admin.NewGate(secret, auth.IdentityHeader, log)
	if err != nil {
		return nil, err
	}
	return admin.NewService(backend, gate, log).Handler(), nil
}

func buildPublicHandler(ctx context.Context, auth *config.AuthBlock, backend storage.Backend, log logger.Logger) (http.Handler, error) {
	cache := token.NewCache(backend, log)
	validator := token.NewValidator(cache, log)

	interval, err := auth.RefreshIntervalDuration()
	if err != nil {
		return nil, err
	}
	if interval > 0 {
		go cache.Run(ctx, interval)
	}

	props := &gatekeeperhttp.HandlerProperties{
		Mode:           gatekeeperhttp.ModeLegacy,
		Validator:      validator,
		IdentityHeader: auth.IdentityHeader,
		Logger:         log,
	}
	if auth.Mode == "signed" {
		props.Mode = gatekeeperhttp.ModeSigned
	}

	keyEnv := auth.SigningKeyEnv
	if keyEnv == "" {
		keyEnv = config.DefaultSigningKeyEnv
	}
	if key := os.Getenv(keyEnv); key != "" {
		ttl, err := auth.TokenTTLDuration()
		if err != nil {
			return nil, err
		}
		issuer, err := signed.NewIssuer([]byte(key), ttl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", keyEnv, err)
		}
		props.Engine = signed.NewEngine(issuer, backend, log)
	} else if props.Mode == gatekeeperhttp.ModeSigned {
		return nil, fmt.Errorf("auth mode \"signed\" requires %s", keyEnv)
	}

	return gatekeeperhttp.Handler(props), nil
}
