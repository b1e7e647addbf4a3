package handler

import (
	"net/http"

	"github.com/supportdesk/internal/config"
)

// ConfigHandler отдаёт публичные параметры конфигурации.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

type callConfigResponse struct {
	ICEServers []config.IceServer `json:"ice_servers"`
}

// GetCallConfig возвращает публичные настройки для звонков (ICE-серверы), без авторизации.
func (h *ConfigHandler) GetCallConfig(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "Call config fetched", callConfigResponse{ICEServers: h.cfg.CallICEServers})
}
