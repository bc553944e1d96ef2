package controllers

import (
	"github.com/THPTUHA/livelook/server/registry"
	"github.com/THPTUHA/livelook/server/rtctoken"
)

type ControllerConfig struct {
	Registry *registry.Registry
	Issuer   rtctoken.Issuer
}

type Controller struct {
	registry *registry.Registry
	issuer   rtctoken.Issuer
}

func NewController(ctrconf *ControllerConfig) *Controller {
	return &Controller{
		registry: ctrconf.Registry,
		issuer:   ctrconf.Issuer,
	}
}
