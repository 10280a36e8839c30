package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/cache"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact"
	contactrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/contact/repo"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/migrations"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/upload"
	"github.com/ovaphlow/pitchfork/service-contacts-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-contacts-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-contacts-go/pkg/utilities"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting service-contacts-go", "addr", cfg.HTTP.Addr, "base_path", cfg.HTTP.BasePath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := migrations.Up(ctx, db.DB); err != nil {
			sugar.Fatalf("migrate: %v", err)
		}
	}

	// redis is optional: without it the identity cache is off and rate
	// limits are counted per process
	var (
		userCache auth.UserCache = cache.Nop{}
		limiter   ratelimit.Limiter
	)
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	}
	if cfg.Redis.Enabled {
		rdb, err := cache.OpenRedis(ctx, cfg.Redis, sugar)
		if err != nil {
			sugar.Warnw("redis unavailable, continuing without it", "err", err)
		} else {
			defer rdb.Close()
			userCache = cache.NewUserCache(rdb, cfg.Cache.UserTTL)
			if cfg.RateLimit.Enabled {
				limiter = ratelimit.NewRedisLimiter(rdb, "users_me", cfg.RateLimit.Requests, cfg.RateLimit.Window)
			}
		}
	}

	dispatcher := mail.NewDispatcher(newSender(cfg.Mail, sugar), sugar, cfg.Mail.Timeout)

	var images user.ImageHost
	if cfg.Storage.Bucket != "" {
		host, err := upload.NewS3Host(ctx, cfg.Storage)
		if err != nil {
			sugar.Fatalf("storage: %v", err)
		}
		images = host
	} else {
		sugar.Warn("storage bucket not configured, avatar uploads will fail")
	}

	codec, err := auth.NewTokenCodec(cfg.JWT.Secret, cfg.JWT.Algorithm, cfg.JWT.Expiration)
	if err != nil {
		sugar.Fatalf("jwt: %v", err)
	}

	users := userrepo.NewUserRepo(db)
	authSvc := auth.NewService(users, auth.BcryptHasher{Cost: cfg.Auth.BcryptCost}, codec, dispatcher, cfg.APIBaseURL(), sugar)

	handler := router.RegisterRoutes(router.Deps{
		Logger:    sugar,
		DB:        db,
		BasePath:  cfg.HTTP.BasePath,
		Authn:     auth.NewAuthenticator(codec, users, userCache, sugar),
		Auth:      auth.NewHandler(authSvc, sugar),
		Users:     user.NewHandler(user.NewUserService(users, images, sugar), sugar),
		Contacts:  contact.NewHandler(contact.NewContactService(contactrepo.NewContactRepo(db), sugar), cfg.Contacts.PhoneRegion, sugar),
		MeLimiter: limiter,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "url", cfg.APIBaseURL())

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	// requests are done; let queued confirmation mails go out
	if err := dispatcher.Close(doneCtx); err != nil {
		sugar.Warnf("mail dispatcher close: %v", err)
	}

	sugar.Info("goodbye")
}

// newSender returns an SMTP sender, or one that only logs when no server is
// configured.
func newSender(cfg mail.Config, logger *zap.SugaredLogger) mail.Sender {
	if cfg.Host != "" {
		s, err := mail.NewSMTPSender(cfg)
		if err != nil {
			logger.Fatalf("mail: %v", err)
		}
		return s
	}
	logger.Warn("MAIL_SERVER not set, outgoing mail is logged instead of sent")
	s, err := mail.NewLogSender(logger)
	if err != nil {
		logger.Fatalf("mail: %v", err)
	}
	return s
}
