package restserver

import (
	"io"
	"net/http"
	"time"

	"github.com/chrissnell/climate-api/internal/log"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/rs/cors"
)

const requestIDHeader = "X-Request-ID"

// wrapMiddleware layers request ids, access logging and CORS around the router
func (c *Controller) wrapMiddleware(router http.Handler) http.Handler {
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: c.restConfig.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)

	logged := handlers.CustomLoggingHandler(io.Discard, corsHandler, accessLogFormatter)

	return requestIDMiddleware(logged)
}

// requestIDMiddleware propagates the caller's X-Request-ID or assigns a new one
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func accessLogFormatter(_ io.Writer, params handlers.LogFormatterParams) {
	log.LogHTTPRequest(log.HTTPLogEntry{
		Method:     params.Request.Method,
		Path:       params.URL.Path,
		Status:     params.StatusCode,
		Duration:   time.Since(params.TimeStamp),
		Size:       params.Size,
		RemoteAddr: params.Request.RemoteAddr,
		UserAgent:  params.Request.UserAgent(),
		RequestID:  params.Request.Header.Get(requestIDHeader),
	})
}
