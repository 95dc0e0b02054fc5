// Package signalcron runs a task on a schedule: once per EventBridge-triggered
// Lambda invocation, or once from the console.
package signalcron

import (
	"context"
	"encoding/json"
	"time"

	signalcli "github.com/Michael-R-Dickinson/table-poker/signal-cli"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
)

type RunCallback func(ctx context.Context) error

type Handler struct {
	service signalcli.Service
	logger  zerolog.Logger

	runOnce RunCallback
}

func NewHandler(
	service signalcli.Service,
	runOnce RunCallback,
) *Handler {
	return &Handler{
		service: service,
		logger:  signalcli.Logger(service),
		runOnce: runOnce,
	}
}

func (h *Handler) RunOnce(ctx context.Context, _ json.RawMessage) error {
	start := time.Now()
	ctx = h.logger.WithContext(ctx)
	h.logger.Info().Msg("running scheduled task")
	if err := h.runOnce(ctx); err != nil {
		h.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("scheduled task failed")
		return err
	}
	h.logger.Info().Dur("elapsed", time.Since(start)).Msg("scheduled task finished")
	return nil
}

func (h *Handler) Start() error {
	switch {
	case signalcli.CommonOpts.Console:
		return h.RunOnce(context.Background(), nil)

	default:
		lambda.Start(h.RunOnce)
	}
	return nil
}
