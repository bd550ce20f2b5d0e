package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"solarcore/internal/mw"
)

const maxAudioBytes = 10 << 20

type commandRequest struct {
	Text string `json:"text" binding:"required"`
}

// Command handles a typed utterance. The reply is returned even when
// dispatch failed; the failure only reaches the log.
func (h *Handler) Command(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	reply, err := h.assistant.Handle(c.Request.Context(), mw.AccountID(c), req.Text)
	if err != nil {
		h.logger.Warn("command failed", "text", req.Text, "error", err)
	}
	c.JSON(http.StatusOK, reply)
}

// Audio transcribes the raw request body and handles the transcript.
func (h *Handler) Audio(c *gin.Context) {
	audio, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAudioBytes+1))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reading audio"})
		return
	}
	if len(audio) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "empty audio"})
		return
	}
	if len(audio) > maxAudioBytes {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio too large"})
		return
	}

	reply, err := h.assistant.HandleAudio(c.Request.Context(), mw.AccountID(c), audio)
	if err != nil {
		h.logger.Warn("audio command failed", "transcript", reply.Transcript, "error", err)
		if reply.Transcript == "" {
			// recognition itself failed
			c.JSON(http.StatusBadGateway, reply)
			return
		}
	}
	c.JSON(http.StatusOK, reply)
}
