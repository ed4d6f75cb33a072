package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/obs"
)

// auditStatsJob refreshes the per-organization audit volume gauge.
func auditStatsJob(ctx context.Context, recorder *audit.Recorder) func() {
	return func() {
		runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		counts, err := recorder.CountByOrganization(runCtx)
		if err != nil {
			obs.Logger().WithError(err).Warn("audit stats refresh failed")
			return
		}
		for org, n := range counts {
			obs.AuditEntries.WithLabelValues(org).Set(float64(n))
		}
		obs.Logger().WithFields(logrus.Fields{"organizations": len(counts)}).Debug("audit stats refreshed")
	}
}
