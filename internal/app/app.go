// Package app はアプリケーションの起動とサブコマンドごとの依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/coursegpt/coursegpt/internal/config"
	"github.com/coursegpt/coursegpt/internal/course"
	"github.com/coursegpt/coursegpt/internal/database"
	"github.com/coursegpt/coursegpt/internal/generation"
	"github.com/coursegpt/coursegpt/internal/handler"
	"github.com/coursegpt/coursegpt/internal/logger"
	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/middleware"
	"github.com/coursegpt/coursegpt/internal/repository"
	"github.com/coursegpt/coursegpt/internal/user"
	"github.com/coursegpt/coursegpt/internal/worker/consistency"
)

// storeConnectTimeout はストアへの初回接続確認のタイムアウト。
const storeConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// .envを読み込んだ上で環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. .envと環境変数から設定を読み込む
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. .envで指定されたログレベルを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = os.Getenv("PORT")
		}
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// storeHandle は設定に応じて開いたストアと、その疎通確認・解放処理をまとめたもの。
type storeHandle struct {
	*repository.Store
	Ping  handler.HealthChecker
	Close func()
}

// openStore はSTORE_DRIVERに応じてストアを開き、疎通を確認する。
func openStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return &storeHandle{
			Store: repository.NewMemoryStore().Store(),
			Ping:  func(context.Context) error { return nil },
			Close: func() {},
		}, nil

	case config.StoreDriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, storeConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))
		return &storeHandle{
			Store: repository.NewMongoStore(db),
			Ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			Close: func() {
				disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := client.Disconnect(disconnectCtx); err != nil {
					slog.Warn("failed to disconnect mongodb", slog.String("error", err.Error()))
				}
			},
		}, nil

	default:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, storeConnectTimeout); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return &storeHandle{
			Store: repository.NewPostgresStore(db),
			Ping: func(ctx context.Context) error {
				return db.PingContext(ctx)
			},
			Close: func() { db.Close() },
		}, nil
	}
}

// newMetrics はアプリケーション用のPrometheusレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouter はストアとメトリクスからAPIサーバーのルーターを構築する。
// 生成エンドポイントのレート制限を使う場合は返されたRateLimiterを終了時に停止する。
func buildRouter(cfg *config.Config, store *storeHandle, reg *prometheus.Registry, collector metrics.MetricsCollector) (http.Handler, *middleware.RateLimiter) {
	// 1. ドメインサービスの初期化
	courseService := course.NewService(store.Users, store.Modules, store.Lessons, collector)
	userService := user.NewService(store.Users)

	generator := generation.NewClient(generation.Config{
		APIKey:        cfg.GenerationAPIKey,
		Endpoint:      cfg.GenerationAPIURL,
		Model:         cfg.GenerationModel,
		Temperature:   cfg.GenerationTemperature,
		MaxTokens:     cfg.GenerationMaxTokens,
		Timeout:       cfg.GenerationTimeout,
		RatePerMinute: cfg.GenerationRatePerMinute,
	}, nil, slog.Default(), collector)

	// 2. 生成エンドポイントのクライアント単位レート制限
	var limiter *middleware.RateLimiter
	if cfg.GenerationClientRatePerMinute > 0 {
		limiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.GenerationClientRatePerMinute))
	}

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            collector,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		GenerationLimiter:  limiter,

		HealthCheck:    store.Ping,
		MetricsHandler: metrics.Handler(reg),

		UserService:   userService,
		ModuleService: courseService,
		LessonService: courseService,
		Generator:     generator,
	})

	return router, limiter
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, collector := newMetrics()
	router, limiter := buildRouter(cfg, store, reg, collector)
	if limiter != nil {
		defer limiter.Stop()
	}

	// 生成APIの応答待ちがあるため、WriteTimeoutは生成タイムアウトより長くする
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildWorkerRouter はワーカーの運用エンドポイント（/health, /metrics）を構築する。
// healthcheckサブコマンドはAPIサーバーと同じくSERVER_PORTの/healthを確認する。
func buildWorkerRouter(store *storeHandle, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(store.Ping))
	r.Handle("/metrics", metrics.Handler(reg))
	return r
}

// runWorker はワーカーモードで起動する。
// ストアを開き、整合性スイープを定期実行する。スイープのメトリクスは
// SERVER_PORTの/metricsで公開する。
// ctxがキャンセルされる（SIGINT/SIGTERM）と停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg, collector := newMetrics()

	sweep := consistency.NewSweepJob(store.Store, collector, slog.Default())
	sweep.Repair = cfg.ConsistencyRepair

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      buildWorkerRouter(store, reg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			// 運用エンドポイントを公開できない場合はワーカーごと停止する
			cancel()
		}
		serverErr <- err
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.ConsistencySweepInterval),
		slog.Bool("repair", cfg.ConsistencyRepair),
		slog.String("addr", server.Addr),
	)

	// 整合性スイープをメインgoroutineで実行（ブロッキング）
	sweep.Start(ctx, cfg.ConsistencySweepInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker metrics server shutdown failed: %w", err)
	}
	if err := <-serverErr; err != nil {
		return fmt.Errorf("worker metrics server listen error: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はストアのスキーマを最新にする。
// PostgreSQLではすべての未適用マイグレーションを順番に適用し、
// MongoDBではインデックスを作成する。
func runMigrate(ctx context.Context, cfg *config.Config) error {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Info("in-memory store has no schema; nothing to migrate")
		return nil

	case config.StoreDriverMongo:
		client, db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, storeConnectTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		defer client.Disconnect(context.Background())

		slog.Info("creating mongodb indexes", slog.String("database", cfg.MongoDatabase))
		if err := database.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("index creation failed: %w", err)
		}
		slog.Info("mongodb indexes created successfully")
		return nil

	default:
		slog.Info("running database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
		return nil
	}
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
