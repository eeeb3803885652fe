package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/bitfantasy/nimo-qms/internal/qms/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	keepaliveInterval = 30 * time.Second
	clientBufferSize  = 64
)

// SSEHandler 看板实时推送（安灯告警、批次提交）
type SSEHandler struct {
	hub *sse.Hub
}

func NewSSEHandler(hub *sse.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

func writeEvent(w io.Writer, name, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}

// Stream 订阅事件流，line_id 为空时接收所有产线
// GET /api/v1/qms/sse/events?token=xxx&line_id=L1
func (h *SSEHandler) Stream(c *gin.Context) {
	client := &sse.Client{
		ID:     uuid.New().String()[:8],
		UserID: GetUserID(c),
		LineID: c.Query("line_id"),
		Events: make(chan sse.Event, clientBufferSize),
	}
	h.hub.Register(client)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	hello, _ := json.Marshal(map[string]string{"client_id": client.ID, "line_id": client.LineID})
	writeEvent(c.Writer, "connected", string(hello))
	c.Writer.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			h.hub.Unregister(client.ID)
			return
		case ev, ok := <-client.Events:
			if !ok {
				return
			}
			writeEvent(c.Writer, ev.EventType, ev.Data)
		case <-ticker.C:
			io.WriteString(c.Writer, ": keepalive\n\n")
		}
		c.Writer.Flush()
	}
}
