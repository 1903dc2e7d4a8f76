package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"

	"github.com/simon-0512/superrag/internal/domain/conversation"
	"github.com/simon-0512/superrag/internal/infrastructure/logger"
	"github.com/simon-0512/superrag/internal/infrastructure/metrics"
	"github.com/simon-0512/superrag/internal/utils/platformerrors"
)

const (
	CronJobTimeout = 10 * time.Minute // Timeout for each cron job execution
)

// Crontab runs the scheduled retention sweep that caps active conversations
// per user.
type Crontab struct {
	ctab          *crontab.Crontab
	conversations *conversation.ConversationService
	schedule      string
}

func NewCrontab(conversations *conversation.ConversationService, schedule string) *Crontab {
	return &Crontab{
		ctab:          crontab.New(),
		conversations: conversations,
		schedule:      schedule,
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	log := logger.GetLogger()

	// execute once on server start to catch up after downtime
	c.sweepRetention(ctx)

	if err := c.ctab.AddJob(c.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.sweepRetention(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to add retention sweep job")
	}
	log.Info().Str("schedule", c.schedule).Msg("retention sweep scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) sweepRetention(ctx context.Context) {
	log := logger.GetLogger()
	start := time.Now()

	purged, err := c.conversations.SweepRetention(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	metrics.RecordRetentionPurge("sweep", purged)
	log.Info().
		Int("purged", purged).
		Dur("duration", time.Since(start)).
		Msg("retention sweep completed")
}
