package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/imvec/internal/cachestore"
	"github.com/xxxsen/imvec/internal/config"
	"github.com/xxxsen/imvec/internal/db"
	"github.com/xxxsen/imvec/internal/extractor"
	"github.com/xxxsen/imvec/internal/handler"
	"github.com/xxxsen/imvec/internal/job"
	"github.com/xxxsen/imvec/internal/middleware"
	"github.com/xxxsen/imvec/internal/pkg/jwt"
	"github.com/xxxsen/imvec/internal/purge"
	"github.com/xxxsen/imvec/internal/repo"
	"github.com/xxxsen/imvec/internal/runtime"
	"github.com/xxxsen/imvec/internal/schedule"
	"github.com/xxxsen/imvec/internal/veccache"
	"github.com/xxxsen/imvec/internal/weightstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "imvec",
		Short: "imvec feature extraction server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run imvec server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
			return runServer(cfg)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	var tokenCaller string
	var tokenTTLHours int
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a caller token for the extraction api",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			if tokenCaller == "" {
				return fmt.Errorf("--caller is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(tokenCaller, []byte(cfg.JWTSecret), time.Duration(tokenTTLHours)*time.Hour)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	tokenCmd.Flags().StringVar(&tokenCaller, "caller", "", "caller id to embed in the token")
	tokenCmd.Flags().IntVar(&tokenTTLHours, "ttl", 72, "token ttl in hours")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("model", cfg.Model.Name),
		zap.String("runtime", cfg.Model.Runtime),
	)

	artifactDB := cachestore.NewDBStore(filepath.Join(cfg.CacheDir, "artifactdb"))
	respCache := cachestore.NewResponseCache(filepath.Join(cfg.CacheDir, "respcache"))
	localKV := cachestore.NewLocalKV(filepath.Join(cfg.CacheDir, "kv.db"))
	defer localKV.Close()
	sessionKV := cachestore.NewSessionKV(256, time.Hour)

	coordinator := purge.NewCoordinator()
	coordinator.AddStore(artifactDB)
	coordinator.AddStoreMatchAll(respCache)
	coordinator.AddStore(localKV)
	coordinator.AddStore(sessionKV)

	env := runtime.Env{
		ModelName:  cfg.Model.Name,
		Quantized:  cfg.Model.Quantized,
		ArtifactDB: artifactDB,
		RespCache:  respCache,
		LocalKV:    localKV,
		SessionKV:  sessionKV,
	}
	if cfg.WeightStore.Type != "" {
		weights, err := weightstore.New(cfg.WeightStore)
		if err != nil {
			return fmt.Errorf("init weight store: %w", err)
		}
		env.Weights = weights
	}
	loader := func(ctx context.Context) (runtime.Model, error) {
		return runtime.New(cfg.Model.Runtime, env, cfg.Model.Data)
	}
	manager := extractor.NewManager(loader, coordinator, time.Duration(cfg.Model.SettleDelayMS)*time.Millisecond)

	var ext extractor.Extractor = extractor.NewService(manager, cfg.Model.Name)

	scheduler := schedule.NewCronScheduler()
	if cfg.VectorCache.EnableDB {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer conn.Close()
		if err := db.ApplyMigrations(conn); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		cacheRepo := repo.NewVectorCacheRepo(conn)
		ext = veccache.WrapDBCache(ext, cacheRepo)
		cleanup := job.NewVectorCacheCleanupJob(cacheRepo, cfg.VectorCache.MaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.VectorCache.CleanupCron); err != nil {
			return fmt.Errorf("schedule cleanup job: %w", err)
		}
	}
	if cfg.VectorCache.LRUSize > 0 {
		ext = veccache.WrapLRUCache(ext, cfg.VectorCache.LRUSize, time.Duration(cfg.VectorCache.LRUTTLMin)*time.Minute)
	}

	extractHandler := handler.NewExtractHandler(ext, manager, 0)
	deps := handler.RouterDeps{
		Extract:         extractHandler,
		JWTSecret:       []byte(cfg.JWTSecret),
		RateLimitWindow: time.Duration(cfg.RateLimitSec) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
