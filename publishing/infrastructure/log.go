package infrastructure

import (
	"context"
	"time"

	"github.com/Zer0phucks/devconsul/publishing/domain"
	"github.com/sirupsen/logrus"
)

// LogPublisher writes publish requests to the log instead of a real platform.
// Used as the fallback publisher and in local development.
type LogPublisher struct{}

func NewLogPublisher() *LogPublisher { return &LogPublisher{} }

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, req domain.PublishRequest) (*domain.PublishResult, error) {
	logrus.WithFields(logrus.Fields{
		"schedule_id": req.ScheduleID,
		"content_id":  req.ContentID,
		"project_id":  req.ProjectID,
		"platform":    req.Platform,
	}).Info("[PUBLISH] Content published (log sink)")
	return &domain.PublishResult{
		Platform:    req.Platform,
		PublishedAt: time.Now().UTC(),
	}, nil
}
