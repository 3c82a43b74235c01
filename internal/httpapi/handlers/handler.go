package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mosskim/gembot/internal/common"
	"github.com/mosskim/gembot/internal/store"
)

type Handler struct {
	Store *store.Store
	Log   *zap.Logger
}

func NewHandler(st *store.Store, log *zap.Logger) *Handler {
	return &Handler{Store: st, Log: log}
}

func (h *Handler) Healthz(c *gin.Context) {
	common.Ok(c, gin.H{"status": "up"})
}

// failStore maps store sentinels onto HTTP statuses and envelope codes.
func (h *Handler) failStore(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		common.Fail(c, http.StatusBadRequest, 10001, err.Error())
	case errors.Is(err, store.ErrUnknownEntity):
		common.Fail(c, http.StatusNotFound, 10404, err.Error())
	case errors.Is(err, store.ErrDuplicateUsage), errors.Is(err, store.ErrDuplicateMessage):
		common.Fail(c, http.StatusConflict, 10409, err.Error())
	case errors.Is(err, store.ErrStoreBusy):
		common.Fail(c, http.StatusServiceUnavailable, 20503, "store busy, retry later")
	default:
		h.Log.Error("store error", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 20001, "storage error")
	}
}
