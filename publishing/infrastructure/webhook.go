package infrastructure

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgError "github.com/Zer0phucks/devconsul/pkg/error"
	pkgUtils "github.com/Zer0phucks/devconsul/pkg/utils"
	"github.com/Zer0phucks/devconsul/publishing/domain"
	"github.com/sirupsen/logrus"
)

// WebhookConfig configures an outbound webhook publisher.
type WebhookConfig struct {
	URL                string
	Secret             string
	InsecureSkipVerify bool
	Timeout            time.Duration
	MaxAttempts        int
}

// WebhookPublisher delivers publish requests as signed JSON POSTs. Transient
// HTTP failures are retried in-process with exponential backoff before the
// delivery is reported failed to the queue.
type WebhookPublisher struct {
	cfg    WebhookConfig
	client *http.Client
}

func NewWebhookPublisher(cfg WebhookConfig) *WebhookPublisher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	return &WebhookPublisher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}
}

func (p *WebhookPublisher) Name() string { return "webhook" }

func (p *WebhookPublisher) Publish(ctx context.Context, req domain.PublishRequest) (*domain.PublishResult, error) {
	postBody, err := json.Marshal(req)
	if err != nil {
		return nil, pkgError.WebhookError(fmt.Sprintf("Failed to marshal body: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, nil)
	if err != nil {
		return nil, pkgError.WebhookError(fmt.Sprintf("error when create http object %v", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.Secret != "" {
		signature, err := pkgUtils.GetMessageDigestOrSignature(postBody, []byte(p.cfg.Secret))
		if err != nil {
			return nil, pkgError.WebhookError(fmt.Sprintf("error when create signature %v", err))
		}
		httpReq.Header.Set("X-Hub-Signature-256", fmt.Sprintf("sha256=%s", signature))
	}

	var attempt int
	sleepDuration := 1 * time.Second

	for attempt = 0; attempt < p.cfg.MaxAttempts; attempt++ {
		httpReq.Body = io.NopCloser(bytes.NewBuffer(postBody))
		resp, err := p.client.Do(httpReq)
		if err == nil {
			func() {
				defer resp.Body.Close()
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					err = nil
					return
				}
				err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
			}()
			if err == nil {
				logrus.Debugf("[PUBLISH] Webhook delivered %s on attempt %d", req.ScheduleID, attempt+1)
				return &domain.PublishResult{
					Platform:    req.Platform,
					PublishedAt: time.Now().UTC(),
				}, nil
			}
		}
		logrus.Warnf("Attempt %d to submit webhook failed: %v", attempt+1, err)
		if attempt < p.cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sleepDuration):
			}
			sleepDuration *= 2
		}
	}

	return nil, pkgError.WebhookError(fmt.Sprintf("error when submit webhook after %d attempts", attempt))
}
