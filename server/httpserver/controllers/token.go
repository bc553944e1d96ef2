package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/THPTUHA/livelook/server/httpserver/helper"
	"github.com/THPTUHA/livelook/server/rtctoken"
	"github.com/gin-gonic/gin"
)

// RTCToken issues a media token for a catalog channel.
func (ctr *Controller) RTCToken(c *gin.Context) {
	name := strings.TrimSpace(c.Query("channel"))
	if _, err := ctr.registry.Query(name); err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	role, err := rtctoken.ParseRole(c.Query("role"))
	if err != nil {
		helper.RespondDomainError(c, err)
		return
	}

	var uid uint32
	if raw := strings.TrimSpace(c.Query("uid")); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			helper.RespondError(c, http.StatusBadRequest, "Invalid uid")
			return
		}
		uid = uint32(n)
	}

	if ctr.issuer == nil {
		helper.RespondDomainError(c, rtctoken.ErrNotConfigured)
		return
	}
	tok, err := ctr.issuer.IssueToken(name, role, uid)
	if err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": tok.Token,
		"uid":   tok.UID,
	})
}
