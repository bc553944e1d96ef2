package helper

import (
	"errors"
	"net/http"
	"time"

	"github.com/THPTUHA/livelook/server/registry"
	"github.com/THPTUHA/livelook/server/rtctoken"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	MsgInvalidChannel = "Invalid channel"
	MsgTooManyRequest = "too many requests"
)

// RespondError writes the error body and stops the handler chain.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// StatusFor maps domain errors onto HTTP statuses.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrUnknownChannel), errors.Is(err, rtctoken.ErrEmptyChannel):
		return http.StatusBadRequest, MsgInvalidChannel
	case errors.Is(err, rtctoken.ErrInvalidRole):
		return http.StatusBadRequest, "Invalid role"
	case errors.Is(err, rtctoken.ErrNotConfigured):
		return http.StatusServiceUnavailable, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func RespondDomainError(c *gin.Context, err error) {
	status, msg := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	RespondError(c, status, msg)
}

// UnixMilli renders an optional instant the way clients expect it: epoch
// milliseconds or null.
func UnixMilli(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
