package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// jobEvents streams a job's progress as server-sent events. A "progress"
// event is sent on connect and whenever the view changes; "heartbeat"
// events keep idle connections open. The stream ends after the job
// completes.
func (h *handlers) jobEvents(c *gin.Context) {
	tenantID, jobID := c.GetString(tenantKey), c.Param("id")
	ctx := c.Request.Context()

	view, err := JobProgress(h.db.WithContext(ctx), tenantID, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job " + jobID + " not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	last, _ := json.Marshal(view)
	writeSSE(c.Writer, "progress", view)
	c.Writer.Flush()
	if view.Status == "completed" {
		return
	}

	ticker := time.NewTicker(h.opts.StreamInterval)
	heartbeat := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			view, err := JobProgress(h.db.WithContext(ctx), tenantID, jobID)
			if err != nil {
				continue
			}
			cur, _ := json.Marshal(view)
			if bytes.Equal(cur, last) {
				continue
			}
			last = cur
			writeSSE(c.Writer, "progress", view)
			c.Writer.Flush()
			if view.Status == "completed" {
				return
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
