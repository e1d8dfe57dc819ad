package controllers

import (
	"net/http"
	"os"
	"time"

	"chorepoints/database"
	"chorepoints/notify"
	"chorepoints/scheduler"
	"chorepoints/utils"
)

func cronAuthorized(w http.ResponseWriter, r *http.Request) bool {
	key := r.Header.Get("X-CRON-KEY")
	if key == "" || key != os.Getenv("CRON_KEY") {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return false
	}
	return true
}

// CronEnsureInstancesHandler materializes due instances for every enabled
// template. Protected via X-CRON-KEY header; safe to invoke repeatedly, the
// unique slot index makes duplicate runs no-ops.
func CronEnsureInstancesHandler(w http.ResponseWriter, r *http.Request) {
	if !cronAuthorized(w, r) {
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	stats, err := sch.EnsureCurrentInstances(r.Context(), time.Now())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Run failed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Instances ensured", Data: stats})
}

// CronOverduePenaltiesHandler applies overdue penalties. Protected via
// X-CRON-KEY header; each instance is penalized at most once regardless of
// how often this runs.
func CronOverduePenaltiesHandler(w http.ResponseWriter, r *http.Request) {
	if !cronAuthorized(w, r) {
		return
	}

	sch := scheduler.New(database.DB, notify.Default())
	stats, err := sch.ProcessOverduePenalties(r.Context(), time.Now())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Run failed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Penalties processed", Data: stats})
}
