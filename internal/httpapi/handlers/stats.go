package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mosskim/gembot/internal/common"
)

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) DatabaseStats(c *gin.Context) {
	stats, err := h.Store.DatabaseStatistics(c.Request.Context())
	if err != nil {
		h.failStore(c, err)
		return
	}
	common.Ok(c, stats)
}

func (h *Handler) ChatStats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stats, err := h.Store.ChatStatistics(c.Request.Context(), id)
	if err != nil {
		h.failStore(c, err)
		return
	}
	common.Ok(c, stats)
}

func (h *Handler) UserStats(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	stats, err := h.Store.UserStatistics(c.Request.Context(), id)
	if err != nil {
		h.failStore(c, err)
		return
	}
	common.Ok(c, stats)
}
