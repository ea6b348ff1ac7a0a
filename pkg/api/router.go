// Package api is the HTTP boundary of the emulator: one listener
// serving admin entity CRUD over Atom/XML and message operations over
// JSON, with broker errors mapped onto the shared status table.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/oladejiayo/localzure/internal/logger"
	"github.com/oladejiayo/localzure/internal/telemetry"
	"github.com/oladejiayo/localzure/pkg/api/handlers"
	"github.com/oladejiayo/localzure/pkg/broker"
)

// CorrelationIDHeader is echoed into error details and log lines when a
// client supplies it.
const CorrelationIDHeader = "X-Correlation-Id"

// NewRouter creates and configures the chi router with all middleware
// and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Correlation context so errors and logs carry the client id
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//
// Routes are rooted at /{namespace} except the health probes.
func NewRouter(b *broker.Broker, cfg APIConfig) http.Handler {
	cfg.applyDefaults()

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationContext)
	r.Use(traceRequests)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	health := handlers.NewHealthHandler(b)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	baseURL := fmt.Sprintf("http://%s:%d/%s", cfg.Host, cfg.Port, cfg.Namespace)
	admin := handlers.NewAdminHandler(b, baseURL)
	msg := handlers.NewMessageHandler(b)
	sess := handlers.NewSessionHandler(b)

	r.Route("/"+cfg.Namespace, func(r chi.Router) {
		r.Get("/$Resources/Queues", admin.ListQueues)
		r.Get("/$Resources/Topics", admin.ListTopics)

		r.Route("/topics/{topic}", func(r chi.Router) {
			r.Put("/", admin.PutTopic)
			r.Get("/", admin.GetTopic)
			r.Delete("/", admin.DeleteTopic)
			r.Post("/messages", msg.Publish)

			r.Get("/subscriptions", admin.ListSubscriptions)
			r.Route("/subscriptions/{sub}", func(r chi.Router) {
				r.Put("/", admin.PutSubscription)
				r.Get("/", admin.GetSubscription)
				r.Delete("/", admin.DeleteSubscription)

				r.Get("/rules", admin.ListRules)
				r.Put("/rules/{rule}", admin.PutRule)
				r.Get("/rules/{rule}", admin.GetRule)
				r.Delete("/rules/{rule}", admin.DeleteRule)

				mountMessaging(r, msg, sess, false)
			})
		})

		// Wildcard queue routes come last; static segments above win.
		r.Route("/{queue}", func(r chi.Router) {
			r.Put("/", admin.PutQueue)
			r.Get("/", admin.GetQueue)
			r.Delete("/", admin.DeleteQueue)
			r.Post("/messages", msg.Send)

			mountMessaging(r, msg, sess, true)
		})
	})

	return r
}

// mountMessaging wires the receive, settlement, dead-letter, and
// session routes shared by queues and subscriptions.
func mountMessaging(r chi.Router, msg *handlers.MessageHandler, sess *handlers.SessionHandler, queue bool) {
	r.Post("/messages/head", msg.Receive(queue, false))
	r.Get("/messages/head", msg.Peek(queue, false))
	r.Delete("/messages/{messageID}/{lockToken}", msg.Complete(queue, false))
	r.Put("/messages/{messageID}/{lockToken}/abandon", msg.Abandon(queue, false))
	r.Put("/messages/{messageID}/{lockToken}/deadletter", msg.DeadLetter(queue))
	r.Post("/messages/{messageID}/{lockToken}/renewlock", msg.RenewLock(queue, false))

	r.Route("/$DeadLetterQueue", func(r chi.Router) {
		r.Post("/messages/head", msg.Receive(queue, true))
		r.Get("/messages/head", msg.Peek(queue, true))
		r.Delete("/messages/{messageID}/{lockToken}", msg.Complete(queue, true))
		r.Put("/messages/{messageID}/{lockToken}/abandon", msg.Abandon(queue, true))
		r.Post("/messages/{messageID}/{lockToken}/renewlock", msg.RenewLock(queue, true))
	})

	r.Post("/sessions/head", sess.AcceptNext(queue))
	r.Post("/sessions/{sessionID}", sess.Accept(queue))
	r.Delete("/sessions/{sessionID}", sess.Release(queue))
	r.Post("/sessions/{sessionID}/messages/head", sess.Receive(queue))
	r.Post("/sessions/{sessionID}/renewlock", sess.RenewLock(queue))
	r.Get("/sessions/{sessionID}/state", sess.GetState(queue))
	r.Put("/sessions/{sessionID}/state", sess.SetState(queue))
}

// correlationContext attaches a logging context carrying the client
// correlation id, remote address, and request start time.
func correlationContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(r.RemoteAddr)
		if cid := r.Header.Get(CorrelationIDHeader); cid != "" {
			lc = lc.WithCorrelation(cid)
		}
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), lc)))
	})
}

// traceRequests wraps each request in a span. A no-op tracer makes this
// free when telemetry is disabled.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(r.Context(), telemetry.SpanHTTPRequest,
			trace.WithAttributes(
				telemetry.HTTPMethod(r.Method),
				telemetry.HTTPRoute(r.URL.Path),
				telemetry.ClientAddr(r.RemoteAddr),
			))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(telemetry.HTTPStatus(ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// requestLogger logs request start at DEBUG and completion at INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		)
	})
}
