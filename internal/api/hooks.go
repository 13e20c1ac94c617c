package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/webhook"
)

type WebhookRequest struct {
	URL    string   `json:"url" binding:"omitempty,url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

type WebhookResponse struct {
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	HasSecret bool     `json:"has_secret"`
}

func webhookResponse(st webhook.Settings) WebhookResponse {
	return WebhookResponse{
		URL:       st.URL,
		Events:    st.Events,
		HasSecret: st.Secret != "",
	}
}

// @Summary Get the webhook configuration
// @Description The signing secret is never returned, only whether one is set
// @Tags webhook
// @Produce json
// @Success 200 {object} WebhookResponse
// @Router /webhook [get]
func (s *Server) getWebhook(c *gin.Context) {
	c.JSON(http.StatusOK, webhookResponse(s.hook.Settings()))
}

// @Summary Set the webhook configuration
// @Description Replaces the webhook target URL, signing secret and event filter. An empty URL disables deliveries.
// @Tags webhook
// @Accept json
// @Produce json
// @Param request body WebhookRequest true "Webhook settings"
// @Success 200 {object} WebhookResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhook [post]
func (s *Server) setWebhook(c *gin.Context) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url must be a valid URL"})
		return
	}

	st := webhook.Settings{URL: req.URL, Secret: req.Secret, Events: req.Events}
	if err := s.hook.Update(st); err != nil {
		s.log.Error("update webhook", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, webhookResponse(s.hook.Settings()))
}

// @Summary Send a test event to the webhook
// @Description Delivers a webhook_test event synchronously and reports the outcome
// @Tags webhook
// @Produce json
// @Param session query string false "Session ID to stamp on the test event"
// @Success 200 {object} OKResponse
// @Failure 400 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /webhook/test [post]
func (s *Server) testWebhook(c *gin.Context) {
	if s.hook.Settings().URL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no webhook configured"})
		return
	}

	if err := s.hook.Test(c.DefaultQuery("session", "test")); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, OKResponse{Success: true})
}
