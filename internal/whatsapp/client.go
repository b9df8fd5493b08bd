package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aniladanir/guest-inbox-webhook/internal/domain"
	"github.com/aniladanir/retry"
	"github.com/google/uuid"
)

const DefaultGraphURL = "https://graph.facebook.com"

// APIError is a non-retryable (4XX) answer from the Graph API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: status=%d body=%s", e.StatusCode, e.Body)
}

var errServer = errors.New("whatsapp api server error")

type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateSender interface {
	SendTemplate(ctx context.Context, host *domain.Host, to, name, language string, components []TemplateComponent) (wamid string, err error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retrier    *retry.Retrier
	logger     *slog.Logger
}

func NewClient(baseURL string, maxRetryOnFail *int, logger *slog.Logger) (*Client, error) {
	// initialize retrier
	retrierOpts := make([]retry.Option, 0)
	if maxRetryOnFail != nil {
		retrierOpts = append(retrierOpts, retry.WithMaxAttemps(*maxRetryOnFail))
	}
	retrier, err := retry.New(retrierOpts...)
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	if baseURL == "" {
		baseURL = DefaultGraphURL
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		retrier: retrier,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: time.Second * 5,
		},
	}, nil
}

type templatePayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         templateBody `json:"template"`
}

type templateBody struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendTemplate sends a pre-approved template from the host's business number.
// Transport errors and 5XX answers are retried, 4XX answers are not.
func (c *Client) SendTemplate(ctx context.Context, host *domain.Host, to, name, language string, components []TemplateComponent) (string, error) {
	payload, err := json.Marshal(templatePayload{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(to, "+"),
		Type:             "template",
		Template: templateBody{
			Name:       name,
			Language:   templateLanguage{Code: language},
			Components: components,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode template payload: %w", err)
	}

	sendLogger := c.logger.With(slog.String("hostId", host.ID), slog.String("template", name))

	var (
		wamid   string
		sendErr error
	)
	retryFunc := func(attempt int) (terminate bool) {
		retryLogger := sendLogger.With(slog.Int("attempt", attempt))
		requestID := uuid.NewString()

		resp, err := c.doRequest(ctx, host, payload, requestID)
		if err != nil {
			retryLogger.Error("failed to send request", "error", err.Error())
			sendErr = err
			return false
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusInternalServerError:
			// 5XX status code indicates server error, try retry
			retryLogger.Error("response indicates error", "requestId", requestID, "statusCode", resp.StatusCode)
			sendErr = fmt.Errorf("%w: status=%d", errServer, resp.StatusCode)
			return false
		case resp.StatusCode >= http.StatusBadRequest:
			// 4XX indicates client error, no need to retry
			raw, _ := io.ReadAll(resp.Body)
			retryLogger.Error("response indicates error", "requestId", requestID, "statusCode", resp.StatusCode)
			sendErr = &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
			return true
		}

		var result sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			retryLogger.Warn("template sent but response could not be decoded", "error", err.Error())
		} else if len(result.Messages) > 0 {
			wamid = result.Messages[0].ID
		}
		sendErr = nil
		retryLogger.Info("template is successfuly sent", "requestId", requestID, "wamid", wamid)
		return true
	}

	if ok := <-c.retrier.Retry(ctx, retryFunc, true); !ok {
		if sendErr == nil {
			sendErr = ctx.Err()
		}
		return "", fmt.Errorf("send template %s: retries exhausted: %w", name, sendErr)
	}
	if sendErr != nil {
		return "", fmt.Errorf("send template %s: %w", name, sendErr)
	}
	return wamid, nil
}

func (c *Client) doRequest(ctx context.Context, host *domain.Host, payload []byte, requestID string) (*http.Response, error) {
	apiVersion := strings.TrimSpace(host.APIVersion)
	if apiVersion == "" {
		apiVersion = domain.DefaultAPIVersion
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, apiVersion, strings.TrimSpace(host.PhoneNumberID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(host.AccessToken))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("X-Request-ID", requestID)

	return c.httpClient.Do(req)
}
