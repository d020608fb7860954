package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "PatternScope/internal/domain/models"
	domrepo "PatternScope/internal/domain/repository"
	svcmetrics "PatternScope/internal/service/metrics"
	"PatternScope/internal/services/analytics"
	"PatternScope/internal/services/scanner"
	"PatternScope/internal/services/similarity"
	"PatternScope/internal/usecase"
	xhttp "PatternScope/pkg/http"
	"PatternScope/pkg/http/middleware"
	xlogger "PatternScope/pkg/logger"
)

// maxImportBytes bounds a CSV upload.
const maxImportBytes = 64 << 20

// PatternsEchoHandler exposes pattern search, series access and correlation over Echo.
type PatternsEchoHandler struct {
	logger      *xlogger.Logger
	analysis    *usecase.PatternAnalysisUseCase
	series      *usecase.SeriesUseCase
	imports     *usecase.ImportUseCase
	correlation *usecase.CorrelationUseCase
	limiter     middleware.Allower
}

// NewPatternsEchoHandler builds the handler. limiter may be nil to disable throttling.
func NewPatternsEchoHandler(
	logger *xlogger.Logger,
	analysis *usecase.PatternAnalysisUseCase,
	series *usecase.SeriesUseCase,
	imports *usecase.ImportUseCase,
	correlation *usecase.CorrelationUseCase,
	limiter middleware.Allower,
) *PatternsEchoHandler {
	return &PatternsEchoHandler{
		logger:      logger,
		analysis:    analysis,
		series:      series,
		imports:     imports,
		correlation: correlation,
		limiter:     limiter,
	}
}

func (h *PatternsEchoHandler) RegisterRoutes(g *echo.Group) {
	p := g.Group("/patterns")
	if h.limiter != nil {
		p.Use(middleware.RateLimit(h.limiter))
	}
	p.POST("/scan", h.Scan)
	p.POST("/forecast", h.Forecast)

	g.GET("/series", h.Series)
	g.GET("/series/catalog", h.Catalog)
	g.POST("/series/import", h.Import)
	g.GET("/correlation", h.Correlation)
	g.GET("/correlation/rank", h.CorrelationRank)
}

func (h *PatternsEchoHandler) Scan(c echo.Context) error {
	start := time.Now()
	req := &models.PatternRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analysis.Scan(c.Request().Context(), usecase.ParamsFromRequest(*req))
	svcmetrics.Observe("scan", start, err != nil)
	if err != nil {
		return h.fail(c, "scan", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PatternsEchoHandler) Forecast(c echo.Context) error {
	start := time.Now()
	req := &models.PatternRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analysis.Forecast(c.Request().Context(), usecase.ParamsFromRequest(*req))
	svcmetrics.Observe("forecast", start, err != nil)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PatternsEchoHandler) Series(c echo.Context) error {
	req := &models.SeriesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.series.GetSeries(c.Request().Context(), usecase.GetSeriesParams{
		Source:   req.Source,
		Interval: domrepo.NormalizeInterval(req.Interval),
		Count:    req.Count,
	})
	if err != nil {
		return h.fail(c, "series", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *PatternsEchoHandler) Catalog(c echo.Context) error {
	keys, err := h.series.ListSeries(c.Request().Context())
	if err != nil {
		return h.fail(c, "catalog", err)
	}
	return xhttp.ListResponse(c, keys, int64(len(keys)))
}

// Import reads a text/csv body of time,open,high,low,close[,volume] rows.
func (h *PatternsEchoHandler) Import(c echo.Context) error {
	req := &models.ImportRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxImportBytes)
	defer body.Close()

	res, err := h.imports.ImportCSV(c.Request().Context(), models.SeriesKey{Source: req.Source, Interval: req.Interval}, body)
	if err != nil {
		return h.fail(c, "import", err)
	}
	return xhttp.CreatedResponse(c, res)
}

func (h *PatternsEchoHandler) Correlation(c echo.Context) error {
	start := time.Now()
	req := &models.CorrelationRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.correlation.Correlate(c.Request().Context(), usecase.CorrelationParams{
		Source:   req.Source,
		Against:  req.Against,
		Interval: domrepo.NormalizeInterval(req.Interval),
		Count:    req.Count,
		Window:   req.Window,
	})
	svcmetrics.Observe("correlation", start, err != nil)
	if err != nil {
		return h.fail(c, "correlation", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// CorrelationRank orders catalog series by |r| against the reference.
func (h *PatternsEchoHandler) CorrelationRank(c echo.Context) error {
	start := time.Now()
	req := &models.CorrelationRankRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	intervals := make([]domrepo.Interval, 0, len(req.Intervals))
	for _, iv := range req.Intervals {
		intervals = append(intervals, domrepo.NormalizeInterval(iv))
	}
	res, err := h.correlation.Rank(c.Request().Context(), usecase.RankParams{
		Source:      req.Source,
		Interval:    domrepo.NormalizeInterval(req.Interval),
		Intervals:   intervals,
		Count:       req.Count,
		Top:         req.Top,
		MinAbsCoeff: req.MinAbsCoeff,
	})
	svcmetrics.Observe("correlation_rank", start, err != nil)
	if err != nil {
		return h.fail(c, "correlation_rank", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PatternsEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps use case errors onto HTTP statuses.
func toAppError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, similarity.ErrInvalidProfile),
		errors.Is(err, scanner.ErrInvalidQuery),
		errors.Is(err, scanner.ErrInvalidReference),
		errors.Is(err, usecase.ErrNoCandidates),
		errors.Is(err, usecase.ErrInvalidCSV):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrNoData):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, analytics.ErrInsufficientOverlap):
		return xhttp.UnprocessableError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrCatalogUnsupported),
		errors.Is(err, usecase.ErrImportUnsupported):
		return xhttp.NotImplementedError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError("analysis timed out").WithError(err)
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return xhttp.TooLargeError("request body too large").WithError(err)
		}
		return xhttp.InternalError("internal error").WithError(err)
	}
}
