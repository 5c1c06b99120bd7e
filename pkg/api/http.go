// Package api exposes the event intake, export and container read
// endpoints consumed by the interception relay and local tooling.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"igvault/pkg/archive"
	"igvault/pkg/logger"
	"igvault/pkg/merge"
	"igvault/pkg/models"
	"igvault/pkg/router"
	"igvault/pkg/settings"
	"igvault/pkg/sink"
	"igvault/pkg/store"
	"igvault/pkg/telemetry"
	"igvault/pkg/utils"
)

// API bundles the handlers' collaborators.
type API struct {
	Router        *router.Router
	Store         *merge.Store
	Settings      settings.Provider
	Sink          sink.Sink
	TmpDir        string
	MaxEventBytes int64
}

// Register attaches all routes to the given mux router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/v1/events", a.postEvent).Methods(http.MethodPost)
	r.HandleFunc("/v1/export", a.postExport).Methods(http.MethodPost)
	r.HandleFunc("/v1/threads", a.getThreads).Methods(http.MethodGet)
	r.HandleFunc("/v1/users", a.getUsers).Methods(http.MethodGet)
	r.HandleFunc("/v1/reels-media", a.getReelsMedia).Methods(http.MethodGet)
	r.HandleFunc("/v1/reels", a.getReelsSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings", a.getSettings).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings/{name}", a.putSetting).Methods(http.MethodPut)
}

// postEvent accepts one relay event. The response is the acknowledgment
// channel: a 2xx is only written after the routed merge has been durably
// applied, and storage failures surface as a distinguishable 500.
func (a *API) postEvent(w http.ResponseWriter, r *http.Request) {
	body := io.Reader(r.Body)
	if a.MaxEventBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, a.MaxEventBytes)
	}
	var ev models.Event
	if err := json.NewDecoder(body).Decode(&ev); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	out, err := a.Router.Route(r.Context(), ev)
	telemetry.EventsTotal.WithLabelValues(out.Branch).Inc()
	if err != nil {
		telemetry.EventErrors.Inc()
		if errors.Is(err, merge.ErrStorage) {
			logger.Error("event_storage_failure", "branch", out.Branch, "error", err)
			utils.JSONError(w, http.StatusInternalServerError, "storage failure")
			return
		}
		logger.Error("event_failed", "branch", out.Branch, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"branch":  out.Branch,
		"mutated": out.Mutated,
		"ack":     out.Ack,
	})
}

// exportRequest is the body of POST /v1/export.
type exportRequest struct {
	ZipFileName string                `json:"zip_file_name"`
	BlobList    []models.ArchiveEntry `json:"blob_list"`
	// ReplaceJpegWithJpg overrides the stored setting when present.
	ReplaceJpegWithJpg *bool `json:"replace_jpeg_with_jpg,omitempty"`
}

// postExport assembles an archive from the supplied blob list. By default
// the finished archive streams back as the response body; with ?deliver=1
// it is handed to the download sink instead. The archive is always
// assembled to completion before any byte leaves the process, so a failed
// assembly never yields a partial download.
func (a *API) postExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ZipFileName == "" {
		utils.JSONError(w, http.StatusBadRequest, "zip_file_name required")
		return
	}
	replaceJpeg := false
	if req.ReplaceJpegWithJpg != nil {
		replaceJpeg = *req.ReplaceJpegWithJpg
	} else if v, ok, err := a.Settings.Get(models.SettingReplaceJpegWithJpg); err == nil && ok {
		replaceJpeg = v
	}

	asm := archive.New(archive.Options{ReplaceJpegWithJpg: replaceJpeg})
	path, err := asm.AssembleToFile(req.BlobList, a.TmpDir, req.ZipFileName)
	if err != nil {
		telemetry.ArchiveFailures.Inc()
		logger.Error("export_failed", "name", req.ZipFileName, "error", err)
		utils.JSONError(w, http.StatusInternalServerError, "archive assembly failed")
		return
	}
	telemetry.ArchivesAssembled.Inc()
	telemetry.ArchiveEntries.Add(float64(len(req.BlobList)))

	if r.URL.Query().Get("deliver") == "1" {
		if err := a.Sink.Deliver(path, req.ZipFileName+".zip"); err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"delivered": req.ZipFileName + ".zip"})
		return
	}

	defer func() { _ = os.Remove(path) }()
	f, err := os.Open(path)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+req.ZipFileName+`.zip"`)
	_, _ = io.Copy(w, f)
}

func (a *API) getThreads(w http.ResponseWriter, r *http.Request) {
	a.writePairs(w, func() ([]merge.Pair, error) { return a.Store.Threads() })
}

func (a *API) getReelsMedia(w http.ResponseWriter, r *http.Request) {
	a.writePairs(w, func() ([]merge.Pair, error) { return a.Store.ReelsMedia() })
}

func (a *API) getReelsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Store.ReelsSummary()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, summary)
}

func (a *API) getUsers(w http.ResponseWriter, r *http.Request) {
	nameToID, idToName, err := a.Store.UserIdentity()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"stories_user_ids":   pairsOrEmpty(nameToID),
		"id_to_username_map": pairsOrEmpty(idToName),
	})
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	out := map[string]bool{}
	for _, name := range models.Settings {
		v, ok, err := a.Settings.Get(name)
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if ok {
			out[name] = v
		}
	}
	_ = utils.JSONWrite(w, http.StatusOK, out)
}

func (a *API) putSetting(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	known := false
	for _, n := range models.Settings {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		utils.JSONError(w, http.StatusNotFound, "unknown setting")
		return
	}
	var body struct {
		Value bool `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := a.Settings.Set(name, body.Value); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{name: body.Value})
}

func (a *API) writePairs(w http.ResponseWriter, load func() ([]merge.Pair, error)) {
	pairs, err := load()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, pairsOrEmpty(pairs))
}

func pairsOrEmpty(pairs []merge.Pair) []merge.Pair {
	if pairs == nil {
		return []merge.Pair{}
	}
	return pairs
}

// Healthz reports process liveness; Readyz additionally checks the store.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
