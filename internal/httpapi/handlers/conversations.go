package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/common"
	"github.com/mosskim/gembot/internal/store"
)

func (h *Handler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		common.Fail(c, http.StatusBadRequest, 10003, "q parameter required")
		return
	}

	var chatID *int64
	if raw := c.Query("chat_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10004, "invalid chat_id")
			return
		}
		chatID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	results, err := h.Store.Search(c.Request.Context(), query, chatID, limit, offset)
	if err != nil {
		h.failStore(c, err)
		return
	}
	common.Ok(c, gin.H{"count": len(results), "results": results})
}

func (h *Handler) ExportChat(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	format, ok := store.ParseExportFormat(c.DefaultQuery("format", "json"))
	if !ok {
		common.Fail(c, http.StatusBadRequest, 10005, "format must be json or text")
		return
	}

	payload, err := h.Store.ExportConversation(c.Request.Context(), id, format)
	if err != nil {
		h.failStore(c, err)
		return
	}
	contentType := "application/json"
	if format == store.ExportText {
		contentType = "text/plain; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, payload)
}

func (h *Handler) DeleteChatMessages(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var userID *int64
	if raw := c.Query("user_id"); raw != "" {
		uid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, 10006, "invalid user_id")
			return
		}
		userID = &uid
	}

	n, err := h.Store.DeleteConversation(c.Request.Context(), id, userID)
	if err != nil {
		h.failStore(c, err)
		return
	}
	h.Log.Info("conversation deleted via api",
		zap.Int64("chat_id", id), zap.Int64("deleted", n))
	common.Ok(c, gin.H{"deleted": n})
}

type purgeReq struct {
	Days int `json:"days"`
}

func (h *Handler) Purge(c *gin.Context) {
	var req purgeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10007, "invalid json")
		return
	}
	n, err := h.Store.PurgeOlderThan(c.Request.Context(), req.Days)
	if err != nil {
		h.failStore(c, err)
		return
	}
	h.Log.Info("retention purge via api",
		zap.Int("days", req.Days), zap.Int64("deleted", n))
	common.Ok(c, gin.H{"deleted": n})
}
