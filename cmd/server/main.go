package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"classifier-api/internal/auth"
	"classifier-api/internal/classify"
	"classifier-api/internal/config"
	apphttp "classifier-api/internal/http"
	"classifier-api/internal/repository"
	filerepo "classifier-api/internal/repository/file"
	"classifier-api/internal/repository/memory"
	"classifier-api/internal/repository/sqlite"
	"classifier-api/internal/service"
	"classifier-api/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		logger.Fatalf("auth jwt secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, cleanup, err := buildUserRepository(cfg)
	if err != nil {
		logger.Fatalf("setup user store: %v", err)
	}
	if cleanup != nil {
		defer cleanup()
	}
	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user store: %v", err)
	}

	hasher := auth.NewHasher(cfg.Auth.BcryptCost)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLMinutes)*time.Minute)
	policy := buildPasswordPolicy(cfg, logger)
	userService := service.NewUserService(userRepo, hasher, tokens, policy)

	classifySvc, err := buildClassifyService(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup classification: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(userService, classifySvc, logger)
	handler.RegisterRoutes(router, apphttp.AuthRequired(tokens))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildUserRepository(cfg config.Config) (repository.UserRepository, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		return memory.NewUserRepository(), nil, nil
	case "file":
		return filerepo.NewUserRepository(cfg.Database.Path), nil, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewUserRepository(db), func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func buildPasswordPolicy(cfg config.Config, logger *logrus.Logger) service.PasswordPolicy {
	switch cfg.Auth.PasswordPolicy {
	case "relaxed":
		logger.Info("using relaxed password policy")
		return service.RelaxedPasswordPolicy()
	case "strict", "":
		return service.StrictPasswordPolicy()
	default:
		logger.Warnf("unknown password policy %q, falling back to strict", cfg.Auth.PasswordPolicy)
		return service.StrictPasswordPolicy()
	}
}

func buildClassifyService(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*classify.Service, error) {
	classifier := classify.NewOllamaClassifier(
		cfg.Inference.URL,
		cfg.Inference.Model,
		time.Duration(cfg.Inference.TimeoutSeconds)*time.Second,
	)

	var archive storage.Service
	if cfg.Storage.Bucket != "" {
		loadOpts := []func(*awscfg.LoadOptions) error{
			awscfg.WithRegion(cfg.Storage.Region),
		}
		if cfg.AWS.Profile != "" {
			loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
		}

		awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Storage.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
				o.UsePathStyle = true
			}
		})
		archive = storage.NewS3Service(client)
		logger.Infof("archiving classified images to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	}

	return classify.NewService(classifier, archive, cfg.Storage.Bucket, cfg.Storage.KeyPrefix, logger), nil
}
