package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/creasty/defaults"

	"PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	"PatternScope/internal/services/scanner"
	"PatternScope/internal/services/similarity"
	xhttp "PatternScope/pkg/http"
	pkgkafka "PatternScope/pkg/kafka"
	applogger "PatternScope/pkg/logger"
)

// KafkaAnalysisHandler consumes pattern requests and runs a forecast for each.
// Reports reach the results topic through the use case's publisher.
type KafkaAnalysisHandler struct {
	topic    string
	analysis *PatternAnalysisUseCase
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewKafkaAnalysisHandler(topic string, analysis *PatternAnalysisUseCase, metrics domrepo.Metrics, l *applogger.Logger) *KafkaAnalysisHandler {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaAnalysisHandler{topic: topic, analysis: analysis, metrics: metrics, l: l}
}

func (h *KafkaAnalysisHandler) Topic() string { return h.topic }

// Handle expects a PatternRequest JSON body. Malformed or invalid requests are
// permanent failures; provider and timeout errors are retried by the consumer.
func (h *KafkaAnalysisHandler) Handle(ctx context.Context, b []byte) error {
	var req models.PatternRequest
	if err := json.Unmarshal(b, &req); err != nil {
		h.recordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("decode request: %w", err))
	}
	if err := defaults.Set(&req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("request defaults: %w", err))
	}
	if err := xhttp.Validator().Struct(req); err != nil {
		h.recordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("invalid request: %w", err))
	}

	report, err := h.analysis.Forecast(ctx, ParamsFromRequest(req))
	if err != nil {
		if isRequestError(err) {
			h.recordError("consumer_request")
			return pkgkafka.Permanent(err)
		}
		h.recordError("consumer_forecast")
		return err
	}
	h.l.Info("kafka request served",
		applogger.String("id", report.ID),
		applogger.String("source", req.Source),
		applogger.Int("matches", len(report.Scan.Matches)))
	return nil
}

func (h *KafkaAnalysisHandler) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}

// isRequestError reports errors caused by the request itself rather than the environment.
func isRequestError(err error) bool {
	return errors.Is(err, similarity.ErrInvalidProfile) ||
		errors.Is(err, scanner.ErrInvalidQuery) ||
		errors.Is(err, scanner.ErrInvalidReference) ||
		errors.Is(err, domrepo.ErrNoData) ||
		errors.Is(err, ErrNoCandidates)
}

var _ pkgkafka.MessageHandler = (*KafkaAnalysisHandler)(nil)
