// Package cleanup реализует периодическую очистку учетных записей,
// которые так и не были активированы до истечения срока действия ключа.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lirumlarum/registration-service/internal/lib/sl"
	"github.com/lirumlarum/registration-service/internal/services/registration"
)

var (
	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_cleanup_sweeps_total",
		Help: "Number of completed cleanup sweeps.",
	})
	usersScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_cleanup_users_scanned_total",
		Help: "Number of user records examined by cleanup sweeps.",
	})
	usersDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_cleanup_users_deleted_total",
		Help: "Number of expired inactive accounts deleted.",
	})
	deleteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "registration_cleanup_delete_failures_total",
		Help: "Number of failed delete attempts during cleanup sweeps.",
	})
)

// Registrar часть воркфлоу регистрации, нужная очистке.
type Registrar interface {
	DeleteExpiredUsers(ctx context.Context) (registration.SweepResult, error)
}

// CleanupService запускает проходы очистки по расписанию.
type CleanupService struct {
	registrar    Registrar
	log          *slog.Logger
	interval     time.Duration
	sweepTimeout time.Duration
}

// New создает новый экземпляр CleanupService.
func New(registrar Registrar, log *slog.Logger, interval, sweepTimeout time.Duration) *CleanupService {
	return &CleanupService{
		registrar:    registrar,
		log:          log,
		interval:     interval,
		sweepTimeout: sweepTimeout,
	}
}

// Run выполняет первый проход сразу, затем по тикеру, пока контекст не отменен.
func (s *CleanupService) Run(ctx context.Context) {
	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *CleanupService) runSweep(ctx context.Context) {
	s.log.Info("starting expired accounts sweep")

	sweepCtx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	res, err := s.registrar.DeleteExpiredUsers(sweepCtx)
	usersScanned.Add(float64(res.Scanned))
	usersDeleted.Add(float64(res.Deleted))
	deleteFailures.Add(float64(res.Failed))
	if err != nil {
		s.log.Error("sweep aborted", sl.Err(err),
			slog.Int("scanned", res.Scanned),
			slog.Int("deleted", res.Deleted),
			slog.Int("failed", res.Failed))
		return
	}
	sweepsTotal.Inc()

	s.log.Info("sweep finished",
		slog.Int("scanned", res.Scanned),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", res.Failed))
}
