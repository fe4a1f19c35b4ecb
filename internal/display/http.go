package display

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/banshee-data/tofview/internal/httputil"
)

// Controls are the user actions the HTTP surface exposes.
type Controls interface {
	// Foreground opens the camera and starts idle detection.
	Foreground(ctx context.Context) error
	// Background closes the camera and stops idle detection.
	Background()
	SetDynamicRanging(enabled bool)
	DynamicRanging() bool
	// LifecycleState names the current session state.
	LifecycleState() string
}

// API serves the surface and its controls.
type API struct {
	surface  *Surface
	controls Controls
	// OpenTimeout bounds a foreground request.
	OpenTimeout time.Duration
}

// NewAPI returns an API. controls may be nil for a read-only viewer.
func NewAPI(s *Surface, c Controls) *API {
	return &API{surface: s, controls: c, OpenTimeout: 10 * time.Second}
}

// RegisterRoutes registers the viewer routes on mux.
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/frame.png", api.handleFrame)
	mux.HandleFunc("/api/status", api.handleStatus)
	mux.HandleFunc("/api/events", api.handleEvents)
	mux.HandleFunc("/api/ranging", api.handleRanging)
	mux.HandleFunc("/api/lifecycle", api.handleLifecycle)
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Snapshot
	Lifecycle      string `json:"lifecycle,omitempty"`
	DynamicRanging bool   `json:"dynamic_ranging"`
}

func (api *API) status() StatusResponse {
	resp := StatusResponse{Snapshot: api.surface.Snapshot()}
	if api.controls != nil {
		resp.Lifecycle = api.controls.LifecycleState()
		resp.DynamicRanging = api.controls.DynamicRanging()
	}
	return resp
}

func (api *API) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	var buf bytes.Buffer
	if err := api.surface.EncodePNG(&buf); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (api *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, api.status())
}

// handleEvents streams surface events as SSE until the client goes away.
// The first message is the current status so late joiners start in sync.
func (api *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	es, err := httputil.NewEventStream(w)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	id, events := api.surface.Subscribe()
	defer api.surface.Unsubscribe(id)

	if err := es.Send("status", api.status()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := es.Send(string(ev.Kind), ev); err != nil {
				logf("event stream %s closed: %v", id, err)
				return
			}
		}
	}
}

// RangingRequest toggles dynamic ranging.
type RangingRequest struct {
	Dynamic *bool `json:"dynamic"`
}

func (api *API) handleRanging(w http.ResponseWriter, r *http.Request) {
	if api.controls == nil {
		httputil.ServiceUnavailable(w, "controls disabled")
		return
	}
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, map[string]bool{"dynamic": api.controls.DynamicRanging()})
	case http.MethodPost:
		var req RangingRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Dynamic == nil {
			httputil.BadRequest(w, "missing dynamic")
			return
		}
		api.controls.SetDynamicRanging(*req.Dynamic)
		httputil.WriteJSONOK(w, map[string]bool{"dynamic": *req.Dynamic})
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// LifecycleRequest moves the app to the foreground or background.
type LifecycleRequest struct {
	Action string `json:"action"`
}

func (api *API) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	if api.controls == nil {
		httputil.ServiceUnavailable(w, "controls disabled")
		return
	}
	var req LifecycleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	switch req.Action {
	case "foreground":
		ctx, cancel := context.WithTimeout(r.Context(), api.OpenTimeout)
		defer cancel()
		if err := api.controls.Foreground(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusConflict, map[string]string{
				"error":     err.Error(),
				"lifecycle": api.controls.LifecycleState(),
			})
			return
		}
	case "background":
		api.controls.Background()
	default:
		httputil.BadRequest(w, "action must be foreground or background")
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"lifecycle": api.controls.LifecycleState()})
}
