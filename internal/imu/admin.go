package imu

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

const tailPage = `<!doctype html>
<html><head><title>IMU samples</title></head>
<body>
<h1>IMU samples</h1>
<form method="post" action="imu-shake"><button>Shake</button></form>
<pre id="log"></pre>
<script>
const log = document.getElementById("log");
const es = new EventSource("imu-tail");
es.onmessage = (e) => {
  log.textContent = e.data + "\n" + log.textContent.split("\n").slice(0, 200).join("\n");
};
</script>
</body></html>
`

// AttachAdminRoutes attaches IMU debugging endpoints under /debug/.
func (s *Source) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("imu", "live IMU sample tail", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, tailPage)
	})

	debug.HandleSilentFunc("imu-stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.Stats())
	})

	debug.HandleSilentFunc("imu-shake", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.Shake()
		io.WriteString(w, "Injected shake samples")
	})

	debug.HandleSilentFunc("imu-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Wrote command %q to IMU", command)
	})

	// Server-Sent Events stream of parsed samples.
	debug.HandleSilentFunc("imu-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case sample, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", FormatLine(sample)); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
