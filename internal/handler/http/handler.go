package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aniladanir/guest-inbox-webhook/docs"
	"github.com/aniladanir/guest-inbox-webhook/internal/service"
	"github.com/aniladanir/guest-inbox-webhook/internal/signature"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const maxRequestBodyBytes int64 = 1024 * 1024

type Handler struct {
	dispatcher service.WebhookDispatcher
	logger     *slog.Logger
	server     *http.Server
}

// @title Guest Inbox Webhook API
// @version 1.0
// @description WhatsApp Cloud API webhook receiver for guest conversations
// @host localhost:6060
// @BasePath /
func NewHttpHandler(addr string, dispatcher service.WebhookDispatcher, logger *slog.Logger) *Handler {
	h := &Handler{
		dispatcher: dispatcher,
		logger:     logger,
	}

	// create router
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	// register routes
	router.GET("/health", h.health)
	router.GET("/webhook", h.verifyWebhook)
	router.POST("/webhook", h.receiveWebhook)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// create http server
	h.server = &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return h
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.server.Handler.ServeHTTP(w, r)
}

// Health godoc
// @Summary Liveness check
// @Tags Health
// @Produce plain
// @Success 200 {string} string "ok"
// @Router /health [get]
func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// VerifyWebhook godoc
// @Summary Webhook subscription handshake
// @Description Echoes hub.challenge when hub.verify_token belongs to a registered host
// @Tags Webhook
// @Produce plain
// @Param hub.mode query string true "Must be subscribe"
// @Param hub.verify_token query string true "Host verify token"
// @Param hub.challenge query string true "Value to echo"
// @Success 200 {string} string "hub.challenge"
// @Failure 400
// @Failure 403
// @Failure 500
// @Router /webhook [get]
func (h *Handler) verifyWebhook(c *gin.Context) {
	challenge, err := h.dispatcher.VerifySubscription(
		c.Request.Context(),
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	switch {
	case err == nil:
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(challenge))
	case errors.Is(err, service.ErrInvalidSubscription):
		c.Status(http.StatusBadRequest)
	case errors.Is(err, service.ErrUnknownVerifyToken):
		c.Status(http.StatusForbidden)
	default:
		h.logger.Error("webhook verification failed", "error", err.Error())
		c.Status(http.StatusInternalServerError)
	}
}

// ReceiveWebhook godoc
// @Summary Webhook delivery
// @Description Verifies X-Hub-Signature-256 and ingests inbound guest messages
// @Tags Webhook
// @Accept json
// @Param X-Hub-Signature-256 header string true "sha256=<hex hmac of the raw body>"
// @Param payload body domain.WebhookEnvelope true "WhatsApp Cloud API envelope"
// @Success 200
// @Failure 400
// @Failure 401
// @Failure 404
// @Failure 500
// @Router /webhook [post]
func (h *Handler) receiveWebhook(c *gin.Context) {
	// the signature covers the exact bytes, so read them before any decoding
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)
	raw, err := c.GetRawData()
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err.Error())
		c.Status(http.StatusBadRequest)
		return
	}

	_, err = h.dispatcher.Deliver(c.Request.Context(), raw, c.GetHeader(signature.Header))
	switch {
	case err == nil:
		c.Status(http.StatusOK)
	case errors.Is(err, service.ErrInvalidSignature):
		c.Status(http.StatusUnauthorized)
	case errors.Is(err, service.ErrMalformedEnvelope):
		h.logger.Warn("malformed webhook", "error", err.Error())
		c.Status(http.StatusBadRequest)
	case errors.Is(err, service.ErrUnknownPhoneNumber):
		c.Status(http.StatusNotFound)
	default:
		h.logger.Error("webhook delivery failed", "error", err.Error())
		c.Status(http.StatusInternalServerError)
	}
}

// requestLogger logs method, path, status and latency.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String())
	}
}
