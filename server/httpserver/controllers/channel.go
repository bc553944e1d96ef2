package controllers

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/THPTUHA/livelook/server/httpserver/helper"
	"github.com/THPTUHA/livelook/server/registry"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
)

var errBadUserID = errors.New("userId must be a string or a number")

// BroadcasterID accepts both JSON strings and numbers and keeps the text.
type BroadcasterID string

func (b *BroadcasterID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*b = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = BroadcasterID(s)
	case data[0] == '-' || (data[0] >= '0' && data[0] <= '9'):
		if !json.Valid(data) {
			return errBadUserID
		}
		*b = BroadcasterID(data)
	default:
		return errBadUserID
	}
	return nil
}

type StartRequest struct {
	Channel string        `json:"channel"`
	UserID  BroadcasterID `json:"userId"`
}

type EndRequest struct {
	Channel string `json:"channel"`
}

type ChannelStatus struct {
	Name          string  `json:"name,omitempty"`
	IsLive        bool    `json:"isLive"`
	BroadcasterID *string `json:"broadcasterId"`
	StartTime     *int64  `json:"startTime"`
}

func toStatus(ch registry.Channel, withName bool) ChannelStatus {
	st := ChannelStatus{
		IsLive:        ch.IsLive,
		BroadcasterID: ch.BroadcasterID,
		StartTime:     helper.UnixMilli(ch.StartTime),
	}
	if withName {
		st.Name = ch.Name
	}
	return st
}

func (ctr *Controller) Status(c *gin.Context) {
	ch, err := ctr.registry.Query(strings.TrimSpace(c.Query("channel")))
	if err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatus(ch, false))
}

func (ctr *Controller) ListChannels(c *gin.Context) {
	list := ctr.registry.List()
	out := make([]ChannelStatus, 0, len(list))
	for _, ch := range list {
		out = append(out, toStatus(ch, true))
	}
	c.JSON(http.StatusOK, gin.H{"channels": out})
}

func (ctr *Controller) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.Channel)
	if _, err := ctr.registry.Query(name); err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	if strings.TrimSpace(string(req.UserID)) == "" {
		helper.RespondError(c, http.StatusBadRequest, "Invalid userId")
		return
	}

	allowed, err := ctr.registry.Reserve(name, string(req.UserID))
	if err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allowed": allowed})
}

func (ctr *Controller) End(c *gin.Context) {
	var req EndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helper.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := ctr.registry.Release(strings.TrimSpace(req.Channel)); err != nil {
		helper.RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
