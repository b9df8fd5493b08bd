package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	hostRepo "github.com/aniladanir/guest-inbox-webhook/internal/repository/host"
	"github.com/aniladanir/guest-inbox-webhook/internal/signature"
)

const DefaultBatchTimeout = 15 * time.Second

var (
	// verification
	ErrInvalidSubscription = errors.New("invalid subscription request")
	ErrUnknownVerifyToken  = errors.New("unknown verify token")

	// delivery
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMalformedEnvelope  = errors.New("malformed webhook envelope")
	ErrUnknownPhoneNumber = errors.New("unknown phone number id")
	ErrBatchFailed        = errors.New("webhook batch was not processed")
)

type WebhookDispatcher interface {
	VerifySubscription(ctx context.Context, mode, token, challenge string) (string, error)
	Deliver(ctx context.Context, rawBody []byte, signatureHeader string) (*BatchResult, error)
}

// BatchResult describes what one delivery did. Outcomes are in the order of
// the messages array.
type BatchResult struct {
	Event    domain.EventKind
	HostID   string
	Outcomes []Outcome
}

func (r *BatchResult) Counts() (stored, duplicates, failed int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Failed():
			failed++
		case o.Duplicate:
			duplicates++
		case o.Stored:
			stored++
		}
	}
	return
}

type DispatcherConfig struct {
	AppSecret    string
	BatchTimeout time.Duration
}

type dispatcher struct {
	hosts        hostRepo.Repository
	ingestor     MessageIngestor
	logger       *slog.Logger
	appSecret    string
	batchTimeout time.Duration
}

func NewWebhookDispatcher(hosts hostRepo.Repository, ingestor MessageIngestor, logger *slog.Logger, cfg DispatcherConfig) WebhookDispatcher {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	return &dispatcher{
		hosts:        hosts,
		ingestor:     ingestor,
		logger:       logger,
		appSecret:    cfg.AppSecret,
		batchTimeout: cfg.BatchTimeout,
	}
}

// VerifySubscription answers the hub.mode=subscribe handshake and returns the
// challenge to echo
func (d *dispatcher) VerifySubscription(ctx context.Context, mode, token, challenge string) (string, error) {
	if mode != "subscribe" || token == "" || challenge == "" {
		return "", ErrInvalidSubscription
	}

	host, err := d.hosts.FindByVerifyToken(ctx, token)
	if errors.Is(err, domain.ErrHostNotFound) {
		d.logger.Warn("webhook verification rejected", "event", "verify_token_rejected")
		return "", ErrUnknownVerifyToken
	}
	if err != nil {
		return "", fmt.Errorf("resolve host by verify token: %w", err)
	}

	d.logger.Info("webhook verification successful", "hostId", host.ID)
	return challenge, nil
}

// Deliver verifies, parses and ingests one webhook POST. rawBody must be the
// bytes exactly as received.
func (d *dispatcher) Deliver(ctx context.Context, rawBody []byte, signatureHeader string) (*BatchResult, error) {
	if !signature.Verify(rawBody, signatureHeader, d.appSecret) {
		d.logger.Warn("webhook signature rejected",
			"event", "signature_rejected",
			"headerPresent", signatureHeader != "",
			"secretConfigured", d.appSecret != "")
		return nil, ErrInvalidSignature
	}

	var envelope domain.WebhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	change, ok := envelope.FirstChange()
	if !ok {
		return nil, fmt.Errorf("%w: entry[0].changes[0].value is missing", ErrMalformedEnvelope)
	}

	event := domain.Classify(change)
	result := &BatchResult{Event: event.Kind()}

	messages, ok := event.(domain.MessagesEvent)
	if !ok {
		d.logEvent(event)
		return result, nil
	}
	if len(messages.Units) == 0 {
		return result, nil
	}

	host, err := d.hosts.FindByPhoneNumberID(ctx, messages.PhoneNumberID)
	if errors.Is(err, domain.ErrHostNotFound) {
		d.logger.Warn("no host for phone number id", "phoneNumberId", messages.PhoneNumberID)
		return result, ErrUnknownPhoneNumber
	}
	if err != nil {
		return result, fmt.Errorf("resolve host by phone number id: %w", err)
	}
	result.HostID = host.ID

	result.Outcomes = d.ingestBatch(ctx, host, messages.Units)

	stored, duplicates, failedCount := result.Counts()
	batchLogger := d.logger.With(slog.String("hostId", host.ID))
	for _, o := range result.Outcomes {
		if o.Failed() {
			batchLogger.Error("message ingestion failed", "messageId", o.MessageID, "kind", o.Kind.String(), "error", o.Err.Error())
		}
	}
	batchLogger.Info("webhook batch processed",
		"messages", len(result.Outcomes),
		"stored", stored,
		"duplicates", duplicates,
		"failed", failedCount)

	// invalid units fail the same way on every redelivery, so they are
	// acknowledged; only store failures and timeouts ask for a retry
	storeFailures := 0
	for _, o := range result.Outcomes {
		switch o.Kind {
		case KindTimeout:
			return result, fmt.Errorf("%w: %w", ErrBatchFailed, context.DeadlineExceeded)
		case KindStore:
			storeFailures++
		}
	}
	if storeFailures > 0 && stored+duplicates == 0 {
		return result, fmt.Errorf("%w: %d of %d messages could not be stored", ErrBatchFailed, storeFailures, len(result.Outcomes))
	}
	return result, nil
}

// ingestBatch runs one goroutine per guest so independent conversations are
// ingested concurrently while each conversation keeps batch order. The whole
// batch shares one deadline.
func (d *dispatcher) ingestBatch(ctx context.Context, host *domain.Host, units []domain.MessageUnit) []Outcome {
	batchCtx, cancel := context.WithTimeout(ctx, d.batchTimeout)
	defer cancel()

	outcomes := make([]Outcome, len(units))
	groups := make(map[string][]int)
	order := make([]string, 0)
	for idx, unit := range units {
		if unit.DecodeErr != nil {
			outcomes[idx] = failed("", KindInvalid, unit.DecodeErr)
			continue
		}
		from := unit.Message.From
		if _, ok := groups[from]; !ok {
			order = append(order, from)
		}
		groups[from] = append(groups[from], idx)
	}

	wg := new(sync.WaitGroup)
	for _, from := range order {
		indexes := groups[from]
		wg.Go(func() {
			for _, idx := range indexes {
				msg := units[idx].Message
				if err := batchCtx.Err(); err != nil {
					outcomes[idx] = failed(msg.ID, KindTimeout, err)
					continue
				}
				outcomes[idx] = d.ingestor.Process(batchCtx, host, msg)
			}
		})
	}
	wg.Wait()

	return outcomes
}

func (d *dispatcher) logEvent(event domain.Event) {
	switch ev := event.(type) {
	case domain.StatusesEvent:
		for _, s := range ev.Statuses {
			d.logger.Info("status update received", "wamid", s.ID, "status", s.Status, "phoneNumberId", ev.PhoneNumberID)
		}
	case domain.TemplateQualityEvent:
		d.logger.Warn("template quality changed",
			"templateId", ev.TemplateID,
			"template", ev.TemplateName,
			"previous", ev.Previous,
			"current", ev.Current)
	case domain.UnrecognizedEvent:
		d.logger.Info("ignoring unrecognized webhook field", "field", ev.Field)
	}
}
