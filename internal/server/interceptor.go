package server

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// RequestTimeMiddleware logs the method, status and duration of every
// request. Websocket upgrades are logged when the connection closes.
func RequestTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isUpgrade(r) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logrus.Infof("websocket closed: %v: %v", r.RemoteAddr, time.Since(start))
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logrus.Infof("request time: %v %v %d: %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}
