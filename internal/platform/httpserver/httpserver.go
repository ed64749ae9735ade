package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for the registry. Every transition settles
// synchronously against the store and ledger before the response is written,
// so the write timeout leaves room for a store round-trip; nothing streams.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
