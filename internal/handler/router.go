package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"linknote-server/internal/logging"
	"linknote-server/internal/middleware"
)

type RouterConfig struct {
	AdminHeader    string
	AdminAllowed   []string
	AllowedOrigins []string
	AllowedMethods string
	AllowedHeaders string
}

const keyPattern = "{key:[A-Za-z0-9_-]{1,100}}"

// NewRouter mounts the admin API under /api/v1/admin and serves every other
// single segment path as a record key.
func NewRouter(cfg RouterConfig, public *PublicHandler, admin *AdminHandler, ws *WebSocketHandler, logger logging.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.LoggerMiddleware(logger))

	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/admin").Subrouter()
	api.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.AllowedMethods, cfg.AllowedHeaders))
	api.Use(middleware.AdminMiddleware(cfg.AdminHeader, cfg.AdminAllowed))

	api.HandleFunc("/bulk", admin.ExportBulk).Methods("GET", "OPTIONS")
	api.HandleFunc("/bulk", admin.SaveBulk).Methods("PUT", "OPTIONS")
	api.HandleFunc("/bulk/preview", admin.PreviewBulk).Methods("POST", "OPTIONS")

	api.HandleFunc("/records", admin.ListRecords).Methods("GET", "OPTIONS")
	api.HandleFunc("/records/"+keyPattern, admin.GetRecord).Methods("GET", "OPTIONS")
	api.HandleFunc("/records/"+keyPattern, admin.SaveRecord).Methods("PUT", "OPTIONS")
	api.HandleFunc("/records/"+keyPattern, admin.DeleteRecord).Methods("DELETE", "OPTIONS")

	if ws != nil {
		api.HandleFunc("/ws", ws.HandleConnection).Methods("GET")
	}

	r.HandleFunc("/"+keyPattern+"/raw", public.Raw).Methods(http.MethodGet)
	r.HandleFunc("/"+keyPattern+"/unlock", public.Unlock).Methods(http.MethodPost)
	r.HandleFunc("/"+keyPattern, public.Show).Methods(http.MethodGet, http.MethodHead)

	return r
}
