package liveview

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NotCoffee418/mic_monitor/pkg/view"
)

// ViewUpdate is the body of POST /view. Absent fields are left unchanged.
type ViewUpdate struct {
	WindowSeconds *float64 `json:"window_seconds,omitempty"`
	FullHistory   *bool    `json:"full_history,omitempty"`
	AutoScale     *bool    `json:"auto_scale,omitempty"`
	YMin          *float64 `json:"y_min,omitempty"`
	YMax          *float64 `json:"y_max,omitempty"`
	RefreshMs     *int     `json:"refresh_ms,omitempty"`
}

func (u ViewUpdate) apply(p *view.Policy) error {
	if u.WindowSeconds != nil {
		if err := p.SetWindow(*u.WindowSeconds); err != nil {
			return err
		}
	}
	if u.FullHistory != nil {
		p.FullHistory = *u.FullHistory
	}
	if u.YMin != nil || u.YMax != nil {
		yMin, yMax := p.YMin, p.YMax
		if u.YMin != nil {
			yMin = *u.YMin
		}
		if u.YMax != nil {
			yMax = *u.YMax
		}
		if err := p.SetFixedBounds(yMin, yMax); err != nil {
			return err
		}
	}
	if u.AutoScale != nil {
		p.AutoScale = *u.AutoScale
	}
	if u.RefreshMs != nil {
		if err := p.SetRefresh(time.Duration(*u.RefreshMs) * time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":  "Mic Monitor API",
			"protocol": s.protocol,
			"status":   s.capture.Status(),
		})
	})

	mux.HandleFunc("GET /latest", func(w http.ResponseWriter, r *http.Request) {
		frame := s.Latest()
		if frame == nil {
			frame = s.Render()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(frame.ToJsonBytes())
	})

	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("WebSocket upgrade error")
			return
		}
		s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("Viewer connected")
		s.setViewer(conn)

		// Keep connection alive, viewers only send control frames.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug().Err(err).Msg("Viewer read error")
				}
				s.dropViewer(conn)
				return
			}
		}
	})

	mux.HandleFunc("POST /start", func(w http.ResponseWriter, r *http.Request) {
		if err := s.capture.Start(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, s.capture.Status())
	})

	mux.HandleFunc("POST /stop", func(w http.ResponseWriter, r *http.Request) {
		if err := s.capture.Stop(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, s.capture.Status())
	})

	mux.HandleFunc("POST /clear", func(w http.ResponseWriter, r *http.Request) {
		s.store.Clear()
		s.logger.Info().Msg("Channel store cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	})

	mux.HandleFunc("GET /view", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Policy())
	})

	mux.HandleFunc("POST /view", func(w http.ResponseWriter, r *http.Request) {
		var update ViewUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		policy, err := s.UpdatePolicy(update.apply)
		if err != nil {
			var status = http.StatusBadRequest
			if !errors.Is(err, view.ErrInvalidWindow) && !errors.Is(err, view.ErrInvalidBounds) &&
				!errors.Is(err, view.ErrInvalidRefresh) {
				status = http.StatusInternalServerError
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
