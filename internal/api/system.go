package api

import (
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Connected int    `json:"connected"`
	UptimeSec int64  `json:"uptime_sec"`
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (s *Server) health(c *gin.Context) {
	total, connected := s.mgr.Count()
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Sessions:  total,
		Connected: connected,
		UptimeSec: int64(time.Since(s.started).Seconds()),
	})
}

// @Summary Service banner
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "wagate",
		"status":  "ok",
		"docs":    "/swagger/index.html",
	})
}

// @Summary QR pairing page
// @Description Browser page that shows the QR code for a session and refreshes it until the device is paired
// @Tags system
// @Produce html
// @Param session query string true "Session ID"
// @Success 200 {string} string "HTML page"
// @Failure 404 {object} ErrorResponse
// @Router /qr [get]
func (s *Server) qrPage(c *gin.Context) {
	id := c.Query("session")
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "session parameter is required"})
		return
	}

	sess, err := s.mgr.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	info := sess.Info()
	safeID := html.EscapeString(id)
	status := "Waiting for QR scan"
	if info.Connected {
		status = "Connected"
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <title>Pair Session %s</title>
    <style>
        body { font-family: Arial, sans-serif; text-align: center; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; }
        .info { margin: 20px 0; padding: 15px; background: #f0f8ff; border-radius: 5px; }
        .connected { background: #d4edda; color: #155724; }
        .qr-box {
            margin: 20px auto;
            padding: 20px;
            border: 2px solid #ddd;
            border-radius: 10px;
            background: white;
            display: inline-block;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>WhatsApp Pairing</h1>
        <div class="info">
            <strong>Session:</strong> %s<br>
            <strong>Status:</strong> <span id="status">%s</span>
        </div>`, safeID, safeID, status)

	if info.Connected {
		page += `
        <div class="info connected">
            <h2>Connected</h2>
            <p>This session is paired and ready to use.</p>
        </div>`
	} else {
		page += fmt.Sprintf(`
        <div class="info">
            <h2>Scan this QR code with WhatsApp</h2>
            <p>Open WhatsApp on your phone, go to Linked Devices and link a device.</p>
        </div>
        <div class="qr-box">
            <img id="qr" alt="QR code" width="256" height="256">
        </div>
    <script>
        const key = new URLSearchParams(location.search).get('api_key');
        const qrURL = '/api/v1/sessions/%s/qr' + (key ? '?api_key=' + encodeURIComponent(key) : '');

        async function poll() {
            try {
                const resp = await fetch(qrURL);
                if (resp.status === 409) {
                    location.reload();
                    return;
                }
                if (resp.ok) {
                    const data = await resp.json();
                    document.getElementById('qr').src = data.image;
                    document.getElementById('status').textContent = 'Waiting for QR scan';
                } else {
                    document.getElementById('status').textContent = 'Waiting for QR code...';
                }
            } catch (e) {}
            setTimeout(poll, 3000);
        }
        poll();
    </script>`, safeID)
	}

	page += `
    </div>
</body>
</html>`

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, page)
}
