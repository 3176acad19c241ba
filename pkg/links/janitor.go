package links

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/foliohq/folio/pkg/audit"
	"github.com/foliohq/folio/pkg/observability"
)

// Janitor periodically deletes links that have been disabled longer
// than the retention window. Disabled links deny access immediately;
// the purge only reclaims storage and keeps the table small.
type Janitor struct {
	store     *Store
	logger    *observability.Logger
	audit     audit.Logger
	cron      *cron.Cron
	schedule  string
	retention time.Duration
}

// NewJanitor creates a purge janitor. Schedule uses cron syntax,
// including descriptors like "@hourly".
func NewJanitor(store *Store, logger *observability.Logger, auditLogger audit.Logger, schedule string, retention time.Duration) *Janitor {
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}
	return &Janitor{
		store:     store,
		logger:    logger,
		audit:     auditLogger,
		cron:      cron.New(),
		schedule:  schedule,
		retention: retention,
	}
}

// Start schedules the purge job
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.runOnce); err != nil {
		return fmt.Errorf("failed to schedule link purge: %w", err)
	}
	j.cron.Start()
	j.logger.WithFields(map[string]interface{}{
		"schedule":  j.schedule,
		"retention": j.retention.String(),
	}).Info("Public link purge janitor started")
	return nil
}

// Stop cancels the schedule, waiting for a running purge to finish
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Public link purge janitor stopped")
}

func (j *Janitor) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := j.Purge(ctx); err != nil {
		j.logger.WithError(err).Error("Public link purge failed")
	}
}

// Purge deletes expired disabled links once and records the result
func (j *Janitor) Purge(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.retention)
	purged, err := j.store.PurgeDisabled(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if purged > 0 {
		j.logger.WithField("purged", purged).Info("Purged disabled public links")
		event := audit.NewEvent(audit.EventTypeLinkPurge, audit.EventStatusSuccess).
			WithMetadata(map[string]interface{}{"purged": purged, "cutoff": cutoff})
		if err := j.audit.Log(ctx, event); err != nil {
			j.logger.WithError(err).Warn("Failed to audit link purge")
		}
	}

	return purged, nil
}
