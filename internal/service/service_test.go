package service

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/cache"
	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	conversationRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/conversation"
	hostRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/host"
	messageRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/message"
	"github.com/aniladanir/guest-inbox-webhook/internal/whatsapp"
	"github.com/aniladanir/guest-inbox-webhook/internal/window"
	"gorm.io/gorm"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type sentTemplate struct {
	HostID, To, Name, Language string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentTemplate
	err  error
	// wait makes SendTemplate block until ctx is done
	wait bool
}

func (f *fakeSender) SendTemplate(ctx context.Context, host *domain.Host, to, name, language string, _ []whatsapp.TemplateComponent) (string, error) {
	if f.wait {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, sentTemplate{HostID: host.ID, To: to, Name: name, Language: language})
	return "wamid.out." + to, nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]string)}
}

func (c *memoryCache) Set(_ context.Context, key, val string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = val
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	v, ok := c.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

type fixture struct {
	db       *gorm.DB
	sender   *fakeSender
	now      time.Time
	ingestor MessageIngestor
}

func newFixture(db *gorm.DB, seen *memoryCache) *fixture {
	f := &fixture{
		db:     db,
		sender: &fakeSender{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	policy := &window.Policy{Window: window.DefaultWindow, Now: func() time.Time { return f.now }}

	var dedupe cache.Cache
	if seen != nil {
		dedupe = seen
	}

	f.ingestor = NewMessageIngestor(
		conversationRepo.NewConversationRepository(db),
		messageRepo.NewMessageRepository(db),
		f.sender,
		dedupe,
		policy,
		discardLogger,
		IngestorConfig{},
	)
	return f
}

func (f *fixture) dispatcher(secret string) WebhookDispatcher {
	return NewWebhookDispatcher(newHostRepoFor(f.db), f.ingestor, discardLogger, DispatcherConfig{
		AppSecret:    secret,
		BatchTimeout: 5 * time.Second,
	})
}

func textMessageAt(from, id, body string, sentAt time.Time) domain.InboundMessage {
	msg := textMessage(from, id, body)
	msg.Timestamp = strconv.FormatInt(sentAt.Unix(), 10)
	return msg
}

func textMessage(from, id, body string) domain.InboundMessage {
	return domain.InboundMessage{
		From:      from,
		ID:        id,
		Timestamp: "1772366400",
		Type:      "text",
		Text:      &domain.TextContent{Body: body},
	}
}

func newHostRepoFor(db *gorm.DB) hostRepo.Repository {
	return hostRepo.NewHostRepository(db)
}
