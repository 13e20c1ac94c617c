package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nicolasppejo/wagate/internal/qr"
	"github.com/nicolasppejo/wagate/internal/session"
)

type CreateSessionResponse struct {
	ID    string `json:"id"`
	QRURL string `json:"qr_url"`
}

type QRResponse struct {
	QRCode string `json:"qr_code"`
	Image  string `json:"image"`
}

type PairPhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type PairPhoneResponse struct {
	Code string `json:"code"`
}

type OKResponse struct {
	Success bool `json:"success"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// @Summary Create a new session
// @Description Creates a new messaging session and starts the QR pairing flow
// @Tags sessions
// @Produce json
// @Success 201 {object} CreateSessionResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [post]
func (s *Server) createSession(c *gin.Context) {
	sess, err := s.mgr.Create()
	if err != nil {
		s.log.Error("create session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, CreateSessionResponse{
		ID:    sess.ID,
		QRURL: fmt.Sprintf("%s/qr?session=%s", s.cfg.BaseURL, sess.ID),
	})
}

// @Summary List sessions
// @Tags sessions
// @Produce json
// @Success 200 {array} session.Info
// @Router /sessions [get]
func (s *Server) listSessions(c *gin.Context) {
	all := s.mgr.All()
	infos := make([]session.Info, 0, len(all))
	for _, sess := range all {
		infos = append(infos, sess.Info())
	}
	c.JSON(http.StatusOK, infos)
}

// @Summary Get session status
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} session.Info
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (s *Server) getSession(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Info())
}

// @Summary Delete a session
// @Description Logs the device out and removes the session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} OKResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (s *Server) deleteSession(c *gin.Context) {
	err := s.mgr.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, session.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, OKResponse{Success: true})
}

// @Summary Reconnect a session
// @Description Drops the current socket and dials again. Fails if the device was logged out.
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} OKResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/reconnect [post]
func (s *Server) reconnectSession(c *gin.Context) {
	err := s.mgr.Reconnect(c.Param("id"))
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
	case errors.Is(err, session.ErrLoggedOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session is logged out, create a new one"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusOK, OKResponse{Success: true})
	}
}

// @Summary Get the pairing QR code
// @Description Returns the current QR code, as JSON with a data URI by default or as a PNG with ?format=png
// @Tags sessions
// @Produce json
// @Produce png
// @Param id path string true "Session ID"
// @Param format query string false "png for a raw image"
// @Success 200 {object} QRResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/qr [get]
func (s *Server) getQR(c *gin.Context) {
	sess, err := s.mgr.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	code, err := sess.QR()
	if errors.Is(err, session.ErrAlreadyPaired) {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "session already paired"})
		return
	}
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "QR code not available yet"})
		return
	}

	if c.Query("format") == "png" {
		png, err := qr.PNG(code, qr.DefaultSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
		c.Data(http.StatusOK, "image/png", png)
		return
	}

	uri, err := qr.DataURI(code, qr.DefaultSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, QRResponse{QRCode: code, Image: uri})
}

// @Summary Pair with a phone number
// @Description Requests a pairing code to enter on the phone instead of scanning a QR
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body PairPhoneRequest true "Phone number with country code"
// @Success 200 {object} PairPhoneResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id}/pair-phone [post]
func (s *Server) pairPhone(c *gin.Context) {
	var req PairPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "phone is required"})
		return
	}

	code, err := s.mgr.PairPhone(c.Request.Context(), c.Param("id"), req.Phone)
	if errors.Is(err, session.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, PairPhoneResponse{Code: code})
}
