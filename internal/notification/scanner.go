package notification

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"equipment-service-backend/config"
	"equipment-service-backend/internal/projection"
)

// sentTTL is how long an alert is remembered. An issue that is still unassigned
// a day later is alerted again.
const sentTTL = 24 * time.Hour

// FeedSource yields the unassigned customer issues, most urgent first.
type FeedSource interface {
	NotificationFeed(ctx context.Context) ([]projection.FeedItem, error)
}

// Dispatcher delivers alerts.
type Dispatcher interface {
	Dispatch(alert Alert)
}

// Scanner periodically reads the notification feed and alerts technicians about
// unassigned customer issues. Each issue is alerted once per urgency level, so
// repeated scans of unchanged data send nothing.
type Scanner struct {
	cfg  config.ScannerConfig
	feed FeedSource
	pool Dispatcher
	sent *cache.Cache
	log  *zap.Logger
}

// NewScanner creates a scanner.
func NewScanner(cfg config.ScannerConfig, feed FeedSource, pool Dispatcher, log *zap.Logger) *Scanner {
	return &Scanner{
		cfg:  cfg,
		feed: feed,
		pool: pool,
		sent: cache.New(sentTTL, time.Hour),
		log:  log,
	}
}

// Run scans on a fixed interval until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("deadline scanner is disabled, not starting")
		return
	}
	s.log.Info("starting deadline scanner", zap.Duration("interval", s.cfg.Interval))

	s.ScanOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("deadline scanner shutting down")
			return
		case <-timer.C:
			s.ScanOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// ScanOnce performs one scan and returns the number of alerts dispatched.
func (s *Scanner) ScanOnce(ctx context.Context) int {
	items, err := s.feed.NotificationFeed(ctx)
	if err != nil {
		s.log.Error("deadline scan failed", zap.Error(err))
		return 0
	}

	var dispatched int
	for _, item := range items {
		alert := Alert{
			IssueID:   item.Issue.ID,
			IssueCode: item.Issue.IssueCode,
			Title:     item.Issue.Title,
		}
		if d := item.Deadline; d != nil {
			alert.Urgency = d.Urgency
			alert.Expired = d.Expired
			alert.RemainingMinutes = d.Minutes
		}

		key := alert.IssueID + ":" + string(alert.Urgency)
		if alert.Expired {
			key = alert.IssueID + ":expired"
		}
		if err := s.sent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			continue
		}
		s.pool.Dispatch(alert)
		dispatched++
	}

	if dispatched > 0 {
		s.log.Info("deadline scan dispatched alerts", zap.Int("alerts", dispatched), zap.Int("unassigned", len(items)))
	}
	return dispatched
}
