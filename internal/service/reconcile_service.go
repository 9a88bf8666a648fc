package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/policy"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
	"github.com/noah-isme/research-portal-api/pkg/storage"
)

// PathLister reports the stored file paths a repository still references.
type PathLister interface {
	ListPaths(ctx context.Context) ([]string, error)
}

type storageTree interface {
	Walk(skipDirs ...string) ([]storage.FileInfo, error)
	Delete(filename string) error
}

type stagingArea interface {
	Root() string
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ReconcileReport summarises one sweep.
type ReconcileReport struct {
	DryRun        bool     `json:"dryRun"`
	Scanned       int      `json:"scanned"`
	Orphans       []string `json:"orphans"`
	Removed       int      `json:"removed"`
	StagingPurged int      `json:"stagingPurged"`
}

// ReconcileService removes stored files no row points at, and stale staging uploads.
type ReconcileService struct {
	tree    storageTree
	staging stagingArea
	listers []PathLister
	grace   time.Duration
	metrics *MetricsService
	audit   auditLogger
	logger  *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(tree storageTree, staging stagingArea, listers []PathLister, grace time.Duration, metrics *MetricsService, audit auditLogger, logger *zap.Logger) *ReconcileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if grace <= 0 {
		grace = time.Hour
	}
	return &ReconcileService{
		tree:    tree,
		staging: staging,
		listers: listers,
		grace:   grace,
		metrics: metrics,
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile runs a sweep on behalf of actor.
func (s *ReconcileService) Reconcile(ctx context.Context, actor *models.JWTClaims, dryRun bool) (*ReconcileReport, error) {
	if err := policy.Authorize(actor, policy.ActionReconcile, policy.Resource{Kind: models.KindStorage}); err != nil {
		return nil, err
	}
	report, err := s.Sweep(ctx, dryRun)
	if err != nil {
		return nil, err
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionOrphanSweep, models.KindStorage, "", report)
	return report, nil
}

// Sweep compares the storage tree against every referenced path. Files older
// than the grace period with no row are removed unless dryRun is set.
func (s *ReconcileService) Sweep(ctx context.Context, dryRun bool) (*ReconcileReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var skip []string
	if s.staging != nil {
		skip = append(skip, s.staging.Root())
	}
	// walk before loading references so a row committed mid sweep still protects its file
	files, err := s.tree.Walk(skip...)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to walk storage")
	}
	referenced, err := s.referencedPaths(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.grace)
	report := &ReconcileReport{DryRun: dryRun, Orphans: make([]string, 0)}
	for _, file := range files {
		if !isResourcePath(file.Path) {
			continue
		}
		report.Scanned++
		if _, ok := referenced[file.Path]; ok || file.ModTime.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, file.Path)
		if dryRun {
			continue
		}
		if err := s.tree.Delete(file.Path); err != nil {
			s.logger.Error("failed to remove orphan", zap.String("path", file.Path), zap.Error(err))
			continue
		}
		report.Removed++
	}

	if !dryRun && s.staging != nil {
		purged, err := s.staging.CleanupOlderThan(s.grace)
		if err != nil {
			s.logger.Error("failed to purge staging", zap.Error(err))
		}
		report.StagingPurged = len(purged)
	}

	s.metrics.RecordOrphansRemoved(report.Removed)
	s.logger.Info("storage reconciled",
		zap.Bool("dry_run", dryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("orphans", len(report.Orphans)),
		zap.Int("removed", report.Removed),
		zap.Int("staging_purged", report.StagingPurged))
	return report, nil
}

// Start sweeps every interval until ctx is cancelled. A zero interval disables it.
func (s *ReconcileService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx, false); err != nil {
					s.logger.Error("scheduled sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ReconcileService) referencedPaths(ctx context.Context) (map[string]struct{}, error) {
	referenced := make(map[string]struct{})
	for _, lister := range s.listers {
		paths, err := lister.ListPaths(ctx)
		if err != nil {
			return nil, appErrors.Internal(err, "failed to load stored paths")
		}
		for _, p := range paths {
			referenced[p] = struct{}{}
		}
	}
	return referenced, nil
}

func isResourcePath(rel string) bool {
	top := strings.SplitN(rel, "/", 2)[0]
	switch top {
	case models.KindSharedArchive.Dir(), models.KindPersonalArchive.Dir(), models.KindResearchRecord.Dir(), models.KindThesisProject.Dir():
		return true
	default:
		return false
	}
}
