package opshttp

import (
	"net/http"

	"github.com/keithlinneman/oboxads-web/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Status serves the ad settings and module status API under /api/.
	Status http.Handler

	UseRecoverMW bool
	OnPanic      func()
}
