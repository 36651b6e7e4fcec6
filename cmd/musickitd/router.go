package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"musickit/channel"
)

// maxEnvelopeBytes bounds a request envelope.
const maxEnvelopeBytes = 1 << 20

type routerDeps struct {
	Dispatcher *channel.Dispatcher
	Gatherer   prometheus.Gatherer
	Logger     *zap.Logger
}

func buildRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()

	// baseline
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Logger))

	r.Get("/healthz", healthCheckHandler(d.Dispatcher))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Post("/channels/"+channel.Name, channelHandler(d.Dispatcher, channel.DefaultCodec, d.Logger))

	return r
}

// channelHandler answers one method call envelope. Channel errors are part
// of the envelope and use 200; only not-implemented and undecodable
// envelopes change the status.
func channelHandler(dispatcher *channel.Dispatcher, codec channel.MessageCodec, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}

		call, err := codec.DecodeCall(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		resp := dispatcher.Handle(r.Context(), call)
		data, err := codec.EncodeResponse(resp)
		if err != nil {
			logger.Error("Failed to encode response", zap.String("method", call.Method), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode response"})
			return
		}

		status := http.StatusOK
		if resp.NotImplemented {
			status = http.StatusNotImplemented
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(data)
	}
}

func healthCheckHandler(dispatcher *channel.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"channel":   dispatcher.Name(),
			"supported": dispatcher.Supported(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request, skipping health checks and
// metric scrapes.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Error("Request failed", fields...)
				return
			}
			logger.Info("Request", fields...)
		})
	}
}
