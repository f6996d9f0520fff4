package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job — периодическая задача; ошибка логируется, но цикл продолжается
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler гоняет независимые периодические задачи, по горутине на задачу.
// Запуск выполняется синхронно внутри цикла тикера: медленный проход
// задерживает следующий, но никогда не копит параллельные запуски.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// Start блокируется до отмены ctx и возвращает после остановки всех задач
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			s.runLoop(ctx, job)
			return nil
		})
	}
	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return g.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping job due to context cancellation", zap.String("job", job.Name))
			return
		case <-ticker.C:
			start := time.Now()
			if err := job.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("Job run failed",
					zap.String("job", job.Name),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(err))
				continue
			}
			s.logger.Debug("Job run completed",
				zap.String("job", job.Name),
				zap.Duration("elapsed", time.Since(start)))
		}
	}
}
