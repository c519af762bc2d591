package tiercache

import (
	"encoding/json"
	"net/http"
	"strings"
)

// InspectionHandler exposes Status/Probe/Evict as read-only (and, for
// Evict, administrative) JSON endpoints. This is just another client of the
// shim, not a new core behavior — the wiring/transport layer itself is out
// of scope, so this handler is a minimal convenience, not a full API.
func InspectionHandler(e *Engine) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, e.Status())
	})

	mux.HandleFunc("/probe", func(w http.ResponseWriter, r *http.Request) {
		if err := e.Probe(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/evict/", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/evict/")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}
		e.Evict(r.Context(), key)
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
