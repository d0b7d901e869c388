package api

import (
	"net/http"

	"github.com/AaronLay10/SentientTimeline/internal/mqtt"
)

// DevicesResponse lists the devices controllers have registered.
type DevicesResponse struct {
	Controllers []string                 `json:"controllers"`
	Devices     []*mqtt.RegisteredDevice `json:"devices"`
}

func (s *Server) devicesHandler(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		notConfigured(w, "device registry")
		return
	}
	writeJSON(w, http.StatusOK, DevicesResponse{
		Controllers: s.Registry.Controllers(),
		Devices:     s.Registry.Devices(),
	})
}
