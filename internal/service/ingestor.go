package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/aniladanir/guest-inbox-webhook/internal/cache"
	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"github.com/aniladanir/guest-inbox-webhook/internal/phone"
	conversationRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/conversation"
	messageRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/message"
	"github.com/aniladanir/guest-inbox-webhook/internal/whatsapp"
	"github.com/aniladanir/guest-inbox-webhook/internal/window"
)

const (
	DefaultExpiryTemplate   = "conversation_expired"
	DefaultTemplateLanguage = "en_US"
	DefaultDedupeTTL        = 24 * time.Hour

	previewLen = 160
	// bounds bookkeeping writes that run after the batch deadline
	recordTimeout = 5 * time.Second
)

type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindInvalid
	KindStore
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInvalid:
		return "invalid"
	case KindStore:
		return "store"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the result of ingesting one message unit. Err is set only when
// the unit was not stored; a failed expiry template is reported in
// TemplateErr and does not fail the unit.
type Outcome struct {
	MessageID      string
	ConversationID string
	Decision       window.Decision
	Stored         bool
	Duplicate      bool
	TemplateSent   bool
	TemplateErr    error
	Kind           ErrorKind
	Err            error
}

func (o Outcome) Failed() bool {
	return o.Err != nil
}

func failed(messageID string, kind ErrorKind, err error) Outcome {
	if kind == KindStore && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
		kind = KindTimeout
	}
	return Outcome{MessageID: messageID, Kind: kind, Err: err}
}

type MessageIngestor interface {
	Process(ctx context.Context, host *domain.Host, msg domain.InboundMessage) Outcome
}

type IngestorConfig struct {
	ExpiryTemplate   string
	TemplateLanguage string
	DedupeTTL        time.Duration
}

type ingestor struct {
	conversations conversationRepo.Repository
	messages      messageRepo.Repository
	sender        whatsapp.TemplateSender
	seen          cache.Cache
	policy        *window.Policy
	logger        *slog.Logger
	cfg           IngestorConfig
}

// NewMessageIngestor wires the ingestion pipeline. seen may be nil, in which
// case the database unique index alone deduplicates.
func NewMessageIngestor(
	conversations conversationRepo.Repository,
	messages messageRepo.Repository,
	sender whatsapp.TemplateSender,
	seen cache.Cache,
	policy *window.Policy,
	logger *slog.Logger,
	cfg IngestorConfig,
) MessageIngestor {
	if cfg.ExpiryTemplate == "" {
		cfg.ExpiryTemplate = DefaultExpiryTemplate
	}
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = DefaultTemplateLanguage
	}
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = DefaultDedupeTTL
	}
	if policy == nil {
		policy = window.NewPolicy()
	}

	return &ingestor{
		conversations: conversations,
		messages:      messages,
		sender:        sender,
		seen:          seen,
		policy:        policy,
		logger:        logger,
		cfg:           cfg,
	}
}

// Process stores one inbound message, creating the conversation on first
// contact. Redelivered messages are detected by provider id and leave no
// trace. When the reply window has closed the expiry template is sent, but
// the inbound message is stored either way.
func (i *ingestor) Process(ctx context.Context, host *domain.Host, msg domain.InboundMessage) Outcome {
	msgLogger := i.logger.With(slog.String("hostId", host.ID), slog.String("messageId", msg.ID))

	if msg.ID == "" || msg.From == "" {
		return failed(msg.ID, KindInvalid, errors.New("message unit is missing id or from"))
	}
	guestNumber := phone.Normalize(msg.From)
	if guestNumber == "" {
		return failed(msg.ID, KindInvalid, fmt.Errorf("invalid sender %q", msg.From))
	}

	if convID, ok := i.alreadySeen(ctx, msg.ID, msgLogger); ok {
		return Outcome{MessageID: msg.ID, ConversationID: convID, Duplicate: true}
	}

	conv, err := i.conversations.FindByGuestNumber(ctx, host.ID, guestNumber)
	if err != nil && !errors.Is(err, domain.ErrConversationNotFound) {
		return failed(msg.ID, KindStore, err)
	}

	var lastActivity *time.Time
	if conv != nil {
		lastActivity = conv.LastMessageAt
	}
	decision := i.policy.Decide(lastActivity)

	if conv == nil {
		conv, err = i.conversations.Upsert(ctx, &domain.Conversation{
			HostID:      host.ID,
			PropertyID:  host.PropertyID,
			GuestNumber: guestNumber,
			GuestName:   msg.ProfileName,
		})
		if err != nil {
			return failed(msg.ID, KindStore, err)
		}
	}

	now := i.policy.Now
	if now == nil {
		now = time.Now
	}
	receivedAt := now().UTC()
	// provider time drives the window unless it is missing or ahead of our clock
	sentAt, ok := msg.SentAt()
	if !ok || sentAt.After(receivedAt) {
		sentAt = receivedAt
	}

	providerID := msg.ID
	inserted, err := i.messages.InsertInbound(ctx, &domain.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: &providerID,
		Content:           msg.Body(),
		Direction:         domain.DirectionInbound,
		Type:              domain.TypeText,
		Status:            domain.StatusReceived,
		SentAt:            sentAt,
	}, preview(msg), sentAt)
	if err != nil {
		return failed(msg.ID, KindStore, err)
	}
	if !inserted {
		msgLogger.Info("skipping duplicate message")
		i.markSeen(ctx, msg.ID, conv.ID, msgLogger)
		return Outcome{MessageID: msg.ID, ConversationID: conv.ID, Duplicate: true}
	}

	out := Outcome{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		Decision:       decision,
		Stored:         true,
	}

	if decision == window.TemplateRequired {
		out.TemplateErr = i.sendExpiryTemplate(ctx, host, conv, receivedAt, msgLogger)
		out.TemplateSent = out.TemplateErr == nil
	}

	i.markSeen(ctx, msg.ID, conv.ID, msgLogger)
	msgLogger.Info("message ingested", "conversationId", conv.ID, "window", decision.String())

	return out
}

// sendExpiryTemplate tells the guest the free-form window has closed and
// keeps a record of the attempt in the conversation. The send is bound by
// ctx; the record is written even when ctx has already expired.
func (i *ingestor) sendExpiryTemplate(ctx context.Context, host *domain.Host, conv *domain.Conversation, at time.Time, logger *slog.Logger) error {
	name, language := i.cfg.ExpiryTemplate, i.cfg.TemplateLanguage
	if host.ExpiryTemplate != "" {
		name = host.ExpiryTemplate
	}
	if host.TemplateLanguage != "" {
		language = host.TemplateLanguage
	}

	record := &domain.Message{
		ConversationID: conv.ID,
		Content:        "template:" + name,
		Direction:      domain.DirectionOutbound,
		Type:           domain.TypeTemplate,
		Status:         domain.StatusSent,
		SentAt:         at,
	}

	wamid, sendErr := i.sender.SendTemplate(ctx, host, conv.GuestNumber, name, language, nil)
	if sendErr != nil {
		logger.Error("failed to send expiry template", "error", sendErr.Error(), "template", name)
		record.Status = domain.StatusFailed
	} else if wamid != "" {
		record.ProviderMessageID = &wamid
	}

	recordCtx, cancel := detached(ctx)
	defer cancel()
	if _, err := i.messages.Insert(recordCtx, record); err != nil {
		logger.Error("failed to record expiry template", "error", err.Error())
	}
	return sendErr
}

// alreadySeen returns the conversation a cached message id was stored in.
func (i *ingestor) alreadySeen(ctx context.Context, messageID string, logger *slog.Logger) (string, bool) {
	if i.seen == nil {
		return "", false
	}
	convID, err := i.seen.Get(ctx, seenKey(messageID))
	if errors.Is(err, cache.ErrMiss) {
		return "", false
	}
	if err != nil {
		// the unique index still catches the duplicate
		logger.Warn("dedupe cache lookup failed", "error", err.Error())
		return "", false
	}
	logger.Info("skipping duplicate message (cached)", "conversationId", convID)
	return convID, true
}

func (i *ingestor) markSeen(ctx context.Context, messageID, conversationID string, logger *slog.Logger) {
	if i.seen == nil {
		return
	}
	setCtx, cancel := detached(ctx)
	defer cancel()
	if err := i.seen.Set(setCtx, seenKey(messageID), conversationID, i.cfg.DedupeTTL); err != nil {
		logger.Warn("failed to cache message id", "error", err.Error())
	}
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

func seenKey(messageID string) string {
	return "wa:msg:" + messageID
}

func preview(msg domain.InboundMessage) string {
	text := msg.Body()
	if text == "" {
		if msg.Type == "" {
			return "[message]"
		}
		return "[" + msg.Type + "]"
	}
	if utf8.RuneCountInString(text) <= previewLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewLen-3]) + "..."
}
