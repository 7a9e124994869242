package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	CORSAllowedOrigins []string
	// GenerationLimiter はレッスン生成エンドポイントのクライアント単位レート制限。nilの場合は適用しない。
	GenerationLimiter *middleware.RateLimiter

	// 運用エンドポイント
	HealthCheck    HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	UserService   UserServiceInterface
	ModuleService ModuleServiceInterface
	LessonService LessonServiceInterface
	Generator     LessonGenerator
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	userHandler := NewUserHandler(deps.UserService)
	moduleHandler := NewModuleHandler(deps.ModuleService)
	lessonHandler := NewLessonHandler(deps.LessonService)
	generationHandler := NewGenerationHandler(deps.Generator)

	// --- 運用エンドポイント ---
	r.Get("/", Welcome)
	r.Get("/health", NewHealthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// ユーザー
		r.Post("/create-user", userHandler.CreateUser)

		// モジュール
		r.Route("/modules", func(r chi.Router) {
			r.Post("/", moduleHandler.CreateModule)
			r.Get("/user/{userId}", moduleHandler.ListModulesForUser)

			r.Route("/{moduleId}", func(r chi.Router) {
				r.Get("/", moduleHandler.GetModule)
				r.Delete("/", moduleHandler.DeleteModule)
				r.Get("/lessons", moduleHandler.ListLessons)
				r.Post("/lessons", lessonHandler.AddLessonToModule)
			})
		})

		// レッスン
		r.Route("/lessons", func(r chi.Router) {
			r.Post("/", lessonHandler.CreateLesson)
			r.Put("/{lessonId}", lessonHandler.UpdateLesson)
			r.Delete("/{lessonId}", lessonHandler.DeleteLesson)
		})

		// レッスン生成（生成専用のレート制限を追加）
		r.Group(func(r chi.Router) {
			if deps.GenerationLimiter != nil {
				r.Use(deps.GenerationLimiter.Middleware())
			}
			r.Post("/gpt/generate-lesson", generationHandler.GenerateLesson)
		})
	})

	return r
}
