package handler

import (
	"net/http"

	"github.com/tabremote/relay-server/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
