// Package consistency はユーザー・モジュール・レッスン間の参照整合性を点検するジョブを提供する。
// 存在しないモジュールやレッスンを指す参照（ダングリング参照）を検出し、
// Repairが有効な場合は参照元から取り除く。
package consistency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/repository"
)

// Result は1回のスイープの集計結果を表す。
type Result struct {
	ModulesChecked int
	UsersChecked   int
	Anomalies      int
	Repaired       int
}

// SweepJob は参照整合性の点検ジョブ。
// 同じ状態に対して何度実行しても結果は変わらない。
type SweepJob struct {
	users   repository.UserRepository
	modules repository.ModuleRepository
	lessons repository.LessonRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	Repair  bool // trueの場合、検出したダングリング参照を取り除く
}

// NewSweepJob は新しいSweepJobを生成する。
// デフォルトでは検出のみを行い、修復は行わない。
func NewSweepJob(store *repository.Store, m metrics.MetricsCollector, logger *slog.Logger) *SweepJob {
	if m == nil {
		m = metrics.Nop{}
	}
	return &SweepJob{
		users:   store.Users,
		modules: store.Modules,
		lessons: store.Lessons,
		metrics: m,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーでジョブを繰り返し実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (j *SweepJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("整合性スイープを開始しました",
		slog.Duration("interval", interval),
		slog.Bool("repair", j.Repair),
	)

	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("整合性スイープの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("整合性スイープを停止しました")
			return
		case <-ticker.C:
			if _, err := j.Run(ctx); err != nil {
				j.logger.Error("整合性スイープの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// Run は全モジュールと全ユーザーの参照を1回点検する。
func (j *SweepJob) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	var res Result

	if err := j.sweepModules(ctx, &res); err != nil {
		return res, err
	}
	if err := j.sweepUsers(ctx, &res); err != nil {
		return res, err
	}

	if res.Repaired > 0 {
		j.metrics.RecordReferencesRepaired(res.Repaired)
	}

	j.logger.Info("整合性スイープが完了しました",
		slog.Int("modules_checked", res.ModulesChecked),
		slog.Int("users_checked", res.UsersChecked),
		slog.Int("anomalies", res.Anomalies),
		slog.Int("repaired", res.Repaired),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return res, nil
}

// sweepModules はモジュールが参照するレッスンの存在を確認する。
func (j *SweepJob) sweepModules(ctx context.Context, res *Result) error {
	modules, err := j.modules.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("モジュール一覧の取得に失敗しました: %w", err)
	}

	for _, m := range modules {
		res.ModulesChecked++
		if len(m.Lessons) == 0 {
			continue
		}

		found, err := j.lessons.FindByIDs(ctx, m.Lessons)
		if err != nil {
			return fmt.Errorf("モジュール %s のレッスン取得に失敗しました: %w", m.ID, err)
		}
		existing := make(map[string]struct{}, len(found))
		for _, l := range found {
			existing[l.ID] = struct{}{}
		}

		for _, lessonID := range m.Lessons {
			if _, ok := existing[lessonID]; ok {
				continue
			}
			res.Anomalies++
			j.metrics.RecordConsistencyAnomaly(metrics.AnomalyDanglingLesson)
			j.logger.Warn("存在しないレッスンへの参照を検出しました",
				slog.String("module_id", m.ID),
				slog.String("lesson_id", lessonID),
			)
			if !j.Repair {
				continue
			}
			if err := j.modules.RemoveLesson(ctx, m.ID, lessonID); err != nil {
				j.logger.Error("レッスン参照の修復に失敗しました",
					slog.String("module_id", m.ID),
					slog.String("lesson_id", lessonID),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Repaired++
		}
	}
	return nil
}

// sweepUsers はユーザーが参照するモジュールの存在を確認する。
func (j *SweepJob) sweepUsers(ctx context.Context, res *Result) error {
	users, err := j.users.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	for _, u := range users {
		res.UsersChecked++
		if len(u.Modules) == 0 {
			continue
		}

		found, err := j.modules.FindByIDs(ctx, u.Modules)
		if err != nil {
			return fmt.Errorf("ユーザー %s のモジュール取得に失敗しました: %w", u.ID, err)
		}
		existing := make(map[string]struct{}, len(found))
		for _, m := range found {
			existing[m.ID] = struct{}{}
		}

		for _, moduleID := range u.Modules {
			if _, ok := existing[moduleID]; ok {
				continue
			}
			res.Anomalies++
			j.metrics.RecordConsistencyAnomaly(metrics.AnomalyDanglingModule)
			j.logger.Warn("存在しないモジュールへの参照を検出しました",
				slog.String("user_id", u.ID),
				slog.String("module_id", moduleID),
			)
			if !j.Repair {
				continue
			}
			if err := j.users.RemoveModule(ctx, u.ID, moduleID); err != nil {
				j.logger.Error("モジュール参照の修復に失敗しました",
					slog.String("user_id", u.ID),
					slog.String("module_id", moduleID),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.Repaired++
		}
	}
	return nil
}
