package domain

import (
	"context"
	"sync"
	"time"
)

// PublishRequest is the payload handed to a platform publisher.
type PublishRequest struct {
	ScheduleID string         `json:"schedule_id"`
	ContentID  string         `json:"content_id"`
	ProjectID  string         `json:"project_id"`
	Platform   string         `json:"platform"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	PublishAt  time.Time      `json:"publish_at"`
}

// PublishResult reports one platform delivery.
type PublishResult struct {
	Platform    string    `json:"platform"`
	ExternalRef string    `json:"external_ref,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// Publisher delivers a piece of content to one destination platform.
type Publisher interface {
	// Name identifies the platform this publisher serves ("webhook", "log", ...).
	Name() string
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
}

// Registry maps platform names to publishers. Safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	fallback   Publisher
}

func NewRegistry() *Registry {
	return &Registry{publishers: make(map[string]Publisher)}
}

// Register adds or replaces the publisher for its platform name.
func (r *Registry) Register(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[p.Name()] = p
}

// SetFallback sets the publisher used when a platform has no dedicated one.
func (r *Registry) SetFallback(p Publisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Get returns the publisher for a platform, falling back to the default.
// The second return is false when neither exists.
func (r *Registry) Get(platform string) (Publisher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.publishers[platform]; ok {
		return p, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Platforms lists the registered platform names.
func (r *Registry) Platforms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		names = append(names, name)
	}
	return names
}
