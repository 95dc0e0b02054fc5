// Package signalrest provides the HTTP surface around the signaling relay:
// shared middleware, a console/Lambda webserver, and the session lookup API.
package signalrest

import (
	"fmt"
	"net/http"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/savaki/apigateway"
)

func Middlewares(service signalcli.Service, routes chi.Router) chi.Router {
	routes.Use(
		withCORS(),
		withLogger(signalcli.Logger(service)),
		middleware.Recoverer,
	)
	return routes
}

// Webserver serves routes on --port in console mode and as an API Gateway
// proxy Lambda otherwise.
func Webserver(service signalcli.Service, routes chi.Router) error {
	logger := signalcli.Logger(service)

	if signalcli.CommonOpts.Console {
		logger.Info().Int("port", signalcli.CommonOpts.Port).Msg("starting http server")
		addr := fmt.Sprintf(":%v", signalcli.CommonOpts.Port)
		return http.ListenAndServe(addr, routes)
	}

	lambda.Start(apigateway.Wrap(routes, signalcli.CommonOpts.Env))
	return nil
}

func CacheControl(handler http.HandlerFunc, maxAge int) http.HandlerFunc {
	value := fmt.Sprintf("max-age=%v", maxAge)
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Cache-Control", value)
		handler.ServeHTTP(w, req)
	}
}

func withCORS() func(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
}

func withLogger(logger zerolog.Logger) func(handler http.Handler) http.Handler {
	return func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := logger.WithContext(req.Context())
			req = req.WithContext(ctx)
			handler.ServeHTTP(w, req)
		})
	}
}
