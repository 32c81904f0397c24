package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/daffahilmyf/go-imagegen/internal/config"
	"github.com/daffahilmyf/go-imagegen/internal/domain/repository"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type ReconcileReport struct {
	Objects  int
	Orphans  []string
	Deleted  int
	Failures int
	Pruned   int64
}

// Reconciler deletes stored objects that no image row references. Objects
// younger than MinAge are skipped so an upload whose row is still being
// written is never touched. Idempotency keys older than IdempotencyTTL are
// pruned on the same pass.
type Reconciler struct {
	images  repository.GeneratedImageRepository
	keys    repository.IdempotencyRepository
	storage repository.ObjectStorage
	cfg     config.Reconcile
	log     *logrus.Logger
	now     func() time.Time
}

func NewReconciler(
	images repository.GeneratedImageRepository,
	keys repository.IdempotencyRepository,
	storage repository.ObjectStorage,
	cfg config.Reconcile,
	log *logrus.Logger,
) *Reconciler {
	return &Reconciler{images: images, keys: keys, storage: storage, cfg: cfg, log: log, now: time.Now}
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	objects, err := r.storage.List(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list objects: %w", err)
	}
	keys, err := r.images.Keys(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list image keys: %w", err)
	}
	known := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		known[key] = struct{}{}
	}

	report := ReconcileReport{Objects: len(objects)}
	cutoff := r.now().Add(-r.cfg.MinAge)
	for _, obj := range objects {
		if _, ok := known[obj.Key]; ok {
			continue
		}
		if !obj.ModTime.IsZero() && obj.ModTime.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, obj.Key)
		if r.cfg.DryRun {
			continue
		}
		if err := r.storage.Delete(ctx, obj.Key); err != nil {
			r.log.WithError(err).WithField("key", obj.Key).Warn("reconcile: delete failed")
			report.Failures++
			continue
		}
		report.Deleted++
	}

	if r.keys != nil && r.cfg.IdempotencyTTL > 0 && !r.cfg.DryRun {
		pruned, err := r.keys.Prune(ctx, r.now().Add(-r.cfg.IdempotencyTTL))
		if err != nil {
			r.log.WithError(err).Warn("reconcile: prune idempotency keys failed")
			report.Failures++
		}
		report.Pruned = pruned
	}
	r.log.WithFields(logrus.Fields{
		"objects": report.Objects,
		"orphans": len(report.Orphans),
		"deleted": report.Deleted,
		"pruned":  report.Pruned,
		"dry_run": r.cfg.DryRun,
	}).Info("reconcile: finished")
	return report, nil
}

// Run executes once when no schedule is configured, otherwise on the cron
// schedule until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.cfg.Schedule == "" {
		_, err := r.RunOnce(ctx)
		return err
	}
	c := cron.New()
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.WithError(err).Warn("reconcile: run failed")
		}
	}); err != nil {
		return fmt.Errorf("reconcile schedule %q: %w", r.cfg.Schedule, err)
	}
	r.log.Infof("reconcile: scheduled %q", r.cfg.Schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
