package presence

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// CountResponse is the body of GET /api/presence.
type CountResponse struct {
	Count       int      `json:"count"`
	Connections []string `json:"connections,omitempty"`
}

// CountHandler serves the live connection count.
// With details enabled, ?details=1 adds the sorted connection keys.
type CountHandler struct {
	tracker      *Tracker
	allowDetails bool
}

// NewCountHandler constructs a CountHandler.
func NewCountHandler(tracker *Tracker, allowDetails bool) *CountHandler {
	return &CountHandler{tracker: tracker, allowDetails: allowDetails}
}

func (h *CountHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var resp CountResponse
	if h.allowDetails && wantDetails(r) {
		resp.Connections = h.tracker.Snapshot()
		resp.Count = len(resp.Connections)
	} else {
		resp.Count = h.tracker.Count()
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func wantDetails(r *http.Request) bool {
	v := r.URL.Query().Get("details")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
