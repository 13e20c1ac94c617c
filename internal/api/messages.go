package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/session"
)

// maxImageBytes caps how much of a remote image send-image will read.
const maxImageBytes = 16 << 20

type SendMessageRequest struct {
	Phone   string `json:"phone" binding:"required"`
	Message string `json:"message" binding:"required"`
}

type SendImageRequest struct {
	Phone    string `json:"phone" binding:"required"`
	ImageURL string `json:"image_url" binding:"required,url"`
	Caption  string `json:"caption"`
}

type SendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// @Summary List chats
// @Description Returns the chats seen by this session, most recently active first
// @Tags messages
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} session.Chat
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/chats [get]
func (s *Server) listChats(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Chats().Chats())
}

// @Summary List cached messages
// @Description Returns cached messages, oldest first. Filter one chat with ?chat=JID; without it the newest messages across all chats are returned.
// @Tags messages
// @Produce json
// @Param id path string true "Session ID"
// @Param chat query string false "Chat JID"
// @Param limit query int false "Maximum number of messages (default 50)"
// @Success 200 {array} session.Message
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/messages [get]
func (s *Server) listMessages(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	c.JSON(http.StatusOK, sess.Chats().Messages(c.Query("chat"), limit))
}

// @Summary List contacts
// @Description Returns the contact book of the paired device
// @Tags messages
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {array} session.Contact
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions/{id}/contacts [get]
func (s *Server) listContacts(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	contacts, err := sess.Contacts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// @Summary Send a text message
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SendMessageRequest true "Recipient phone or JID, and the text"
// @Success 200 {object} SendMessageResponse
// @Failure 400 {object} SendMessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} SendMessageResponse
// @Router /sessions/{id}/send-message [post]
func (s *Server) sendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, SendMessageResponse{Error: "phone and message are required"})
		return
	}

	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	if _, err := session.ParseRecipient(req.Phone); err != nil {
		c.JSON(http.StatusBadRequest, SendMessageResponse{Error: err.Error()})
		return
	}

	id, ts, err := sess.SendText(c.Request.Context(), req.Phone, req.Message)
	if err != nil {
		s.log.Error("send message", zap.String("session", sess.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, SendMessageResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SendMessageResponse{Success: true, MessageID: id, Timestamp: ts.Unix()})
}

// @Summary Send an image
// @Description Downloads the image from image_url and sends it with an optional caption
// @Tags messages
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body SendImageRequest true "Recipient, image URL and optional caption"
// @Success 200 {object} SendMessageResponse
// @Failure 400 {object} SendMessageResponse
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} SendMessageResponse
// @Router /sessions/{id}/send-image [post]
func (s *Server) sendImage(c *gin.Context) {
	var req SendImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, SendMessageResponse{Error: "phone and a valid image_url are required"})
		return
	}

	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	if _, err := session.ParseRecipient(req.Phone); err != nil {
		c.JSON(http.StatusBadRequest, SendMessageResponse{Error: err.Error()})
		return
	}

	data, err := s.fetchImage(req.ImageURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, SendMessageResponse{Error: err.Error()})
		return
	}

	id, ts, err := sess.SendImage(c.Request.Context(), req.Phone, data, http.DetectContentType(data), req.Caption)
	if err != nil {
		s.log.Error("send image", zap.String("session", sess.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, SendMessageResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SendMessageResponse{Success: true, MessageID: id, Timestamp: ts.Unix()})
}

func (s *Server) fetchImage(url string) ([]byte, error) {
	resp, err := s.fetch.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to fetch image: " + resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}

// @Summary Download received media
// @Description Serves media bytes cached from incoming messages
// @Tags messages
// @Produce octet-stream
// @Param id path string true "Session ID"
// @Param media_id path string true "Media ID from the message payload"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/media/{media_id} [get]
func (s *Server) getMedia(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	data, mimetype, ok := sess.Media(c.Param("media_id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "media not found or expired"})
		return
	}
	if mimetype == "" {
		mimetype = "application/octet-stream"
	}
	c.Data(http.StatusOK, mimetype, data)
}
