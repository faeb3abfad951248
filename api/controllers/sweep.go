package controllers

import (
	"net/http"

	"github.com/parcelops/backend/api/responses"
	sweepsvc "github.com/parcelops/backend/internal/sweep"
	"github.com/parcelops/backend/pkg/logger"
)

// TriggerSweep kicks off a delivery-status sweep on demand. An already
// running sweep makes this a no-op with an empty report.
func TriggerSweep(svc *sweepsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.RunOnce(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// SweepStatus reports whether a sweep is currently running.
func SweepStatus(svc *sweepsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]bool{"in_progress": svc.InProgress()})
	}
}
