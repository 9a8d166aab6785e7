package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"iot-monitor/internal/analytics"
	"iot-monitor/internal/auth"
	"iot-monitor/internal/models"
	"iot-monitor/internal/report"
	"iot-monitor/internal/websocket"

	"github.com/gorilla/mux"
)

const defaultHistoryLimit = 20

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": serviceName,
		"version": serviceVersion,
	})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form body")
		return
	}
	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	if err := s.auth.Authenticate(username, password); err != nil {
		s.log.Info("login rejected", "username", username, "reason", err)
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	token, err := s.auth.GenerateToken(username)
	if err != nil {
		s.log.Error("failed to sign token", "error", err)
		writeDetail(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "bearer",
	})
}

// snapshot is the fail-open read used by every snapshot-backed endpoint.
func (s *Server) snapshot(ctx context.Context) models.SystemSnapshot {
	snapshot, err := s.monitor.Snapshot(ctx)
	if err != nil {
		storeErrors.WithLabelValues("snapshot").Inc()
		s.log.Error("serving degraded snapshot", "error", err)
	}
	observeSnapshot(snapshot)
	return snapshot
}

func (s *Server) currentHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot(r.Context()))
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]
	query := r.URL.Query()

	limit := defaultHistoryLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "limit must be an integer")
			return
		}
		limit = n
	}

	history, err := s.monitor.History(r.Context(), sensorID, limit, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		storeErrors.WithLabelValues("history").Inc()
		s.log.Error("history unavailable", "sensor", sensorID, "error", err)
		history = []models.HistoryRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensor_id": sensorID,
		"data":      history,
		"count":     len(history),
	})
}

func (s *Server) alertsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	alerts, err := s.monitor.Alerts(r.Context(), query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		storeErrors.WithLabelValues("alerts").Inc()
		s.log.Error("alert feed incomplete", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  alerts,
		"count": len(alerts),
	})
}

func (s *Server) connectionHandler(w http.ResponseWriter, r *http.Request) {
	connected := true
	if err := s.monitor.Ping(r.Context()); err != nil {
		storeErrors.WithLabelValues("ping").Inc()
		s.log.Warn("store unreachable", "error", err)
		connected = false
	}

	message := "System operational"
	if !connected {
		message = "System disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": connected,
		"message":   message,
	})
}

type thresholdUpdate struct {
	Current *float64 `json:"current"`
	Power   *float64 `json:"power"`
}

func (s *Server) thresholdHandler(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]

	var body thresholdUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if body.Current == nil || body.Power == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "current and power are required")
		return
	}

	user, _ := auth.Username(r.Context())
	s.log.Info("threshold update requested", "sensor", sensorID, "user", user)

	if !s.monitor.SetThreshold(r.Context(), sensorID, *body.Current, *body.Power) {
		thresholdUpdates.WithLabelValues("error").Inc()
		storeErrors.WithLabelValues("threshold").Inc()
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"detail":  "Error updating threshold",
		})
		return
	}

	thresholdUpdates.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Threshold updated for %s", sensorID),
		"threshold": map[string]float64{
			"current": *body.Current,
			"power":   *body.Power,
		},
	})
}

func (s *Server) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, analytics.Summarize(s.snapshot(r.Context())))
}

func (s *Server) exportRows(r *http.Request) (string, []report.Row) {
	query := r.URL.Query()
	sensorID := query.Get("sensor_id")

	records, err := s.monitor.Export(r.Context(), sensorID, s.opts.ExportLimit, query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		storeErrors.WithLabelValues("export").Inc()
		s.log.Error("export incomplete", "sensor", sensorID, "error", err)
	}

	name := sensorID
	if name == "" {
		name = "all"
	}
	return name, report.Rows(records)
}

func (s *Server) exportCSVHandler(w http.ResponseWriter, r *http.Request) {
	name, rows := s.exportRows(r)
	if len(rows) == 0 {
		writeDetail(w, http.StatusNotFound, "No data to export")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rows); err != nil {
		s.log.Error("rendering CSV export", "error", err)
		writeDetail(w, http.StatusInternalServerError, "could not render export")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=iot_export_%s.csv", name))
	w.Write(buf.Bytes())
}

func (s *Server) exportExcelHandler(w http.ResponseWriter, r *http.Request) {
	name, rows := s.exportRows(r)
	if len(rows) == 0 {
		writeDetail(w, http.StatusNotFound, "No data to export")
		return
	}

	var buf bytes.Buffer
	if err := report.WriteExcel(&buf, rows); err != nil {
		s.log.Error("rendering Excel export", "error", err)
		writeDetail(w, http.StatusInternalServerError, "could not render export")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=iot_export_%s.xlsx", name))
	w.Write(buf.Bytes())
}

func (s *Server) liveHandler(w http.ResponseWriter, r *http.Request) {
	initial := &websocket.Message{Type: "snapshot", Payload: s.snapshot(r.Context())}
	if err := s.hub.Serve(w, r, initial); err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
	}
}
