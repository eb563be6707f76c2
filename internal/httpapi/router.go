// Package httpapi exposes the scan controller over HTTP.
package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bcms_scan_go/internal/domain"
	"bcms_scan_go/internal/stream"
)

// Control is the controller surface the API drives. *scan.Controller
// implements it.
type Control interface {
	RequestStart()
	RequestStop()
	RequestSetPower(level int)
	RequestSetRegion(region int)
	Clear()
	Stats() *stream.Value[domain.Stats]
	Power() *stream.Value[int]
	Region() *stream.Value[int]
	Scanning() *stream.Value[bool]
	Tags() *stream.Value[domain.Snapshot]
	Session() domain.ScanSession
	WriteCSV(w io.Writer) error
}

type handler struct {
	ctl Control
	log *slog.Logger
}

// NewRouter registers the API routes. gatherer backs /metrics; nil uses the
// default registry.
func NewRouter(ctl Control, gatherer prometheus.Gatherer, log *slog.Logger) *mux.Router {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	h := &handler{ctl: ctl, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", h.status).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/tags", h.tags).Methods(http.MethodGet)
	api.HandleFunc("/tags.csv", h.tagsCSV).Methods(http.MethodGet)
	api.HandleFunc("/scan/{action:start|stop|clear}", h.scan).Methods(http.MethodPost)
	api.HandleFunc("/power", h.setPower).Methods(http.MethodPut)
	api.HandleFunc("/region", h.setRegion).Methods(http.MethodPut)
	return r
}

type statusResponse struct {
	Scanning bool               `json:"scanning"`
	Power    int                `json:"power"`
	Region   int                `json:"region"`
	Session  domain.ScanSession `json:"session"`
	Stats    domain.Stats       `json:"stats"`
}

type tagResponse struct {
	domain.AggregatedTag
	Status string `json:"status"`
}

type errorResponse struct {
	Error  string         `json:"error"`
	Status statusResponse `json:"status"`
}

func (h *handler) snapshot() statusResponse {
	return statusResponse{
		Scanning: h.ctl.Scanning().Load(),
		Power:    h.ctl.Power().Load(),
		Region:   h.ctl.Region().Load(),
		Session:  h.ctl.Session(),
		Stats:    h.ctl.Stats().Load(),
	}
}

func (h *handler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Stats().Load())
}

func (h *handler) tags(w http.ResponseWriter, _ *http.Request) {
	tags := h.ctl.Tags().Load().Tags()
	out := make([]tagResponse, 0, len(tags))
	for _, tag := range tags {
		out = append(out, tagResponse{AggregatedTag: tag, Status: tag.Status().String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) tagsCSV(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tags-`+time.Now().Format("20060102-150405")+`.csv"`)
	if err := h.ctl.WriteCSV(w); err != nil {
		h.log.Warn("httpapi: csv export failed", "err", err)
	}
}

// scan runs a control action and answers with the resulting status. Start
// and stop report 409 when the scanner did not end up in the asked state;
// the cause goes to the controller's error stream.
func (h *handler) scan(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "start":
		h.ctl.RequestStart()
		if !h.ctl.Scanning().Load() {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "scan did not start", Status: h.snapshot()})
			return
		}
	case "stop":
		h.ctl.RequestStop()
		if h.ctl.Scanning().Load() {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "scan did not stop", Status: h.snapshot()})
			return
		}
	case "clear":
		h.ctl.Clear()
	}
	h.log.Info("httpapi: scan action", "action", action)
	writeJSON(w, http.StatusOK, h.snapshot())
}

type levelRequest struct {
	Level *int `json:"level"`
}

type regionRequest struct {
	Region *int `json:"region"`
}

func (h *handler) setPower(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"level\": int}", Status: h.snapshot()})
		return
	}
	h.ctl.RequestSetPower(*req.Level)
	if h.ctl.Power().Load() != *req.Level {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "power level rejected", Status: h.snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *handler) setRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Region == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"region\": int}", Status: h.snapshot()})
		return
	}
	if !domain.ValidRegion(*req.Region) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "region outside 0..3", Status: h.snapshot()})
		return
	}
	h.ctl.RequestSetRegion(*req.Region)
	if h.ctl.Region().Load() != *req.Region {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "region rejected by reader", Status: h.snapshot()})
		return
	}
	writeJSON(w, http.StatusOK, h.snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
