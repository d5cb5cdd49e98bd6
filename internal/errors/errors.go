package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"rfm-dashboard/internal/ingest"
	"rfm-dashboard/internal/rfm"
)

type ErrorCode string

const (
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeBadRequest       ErrorCode = "BAD_REQUEST"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeRateLimit        ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeSchema           ErrorCode = "SCHEMA_ERROR"
	CodeScoring          ErrorCode = "SCORING_ERROR"
	CodeEmptyInput       ErrorCode = "EMPTY_INPUT"
	CodeParse            ErrorCode = "PARSE_ERROR"
	CodeUnsupportedMedia ErrorCode = "UNSUPPORTED_FORMAT"
	CodeTooLarge         ErrorCode = "PAYLOAD_TOO_LARGE"
)

type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Fields     []string  `json:"fields,omitempty"`
	StatusCode int       `json:"-"`
	Cause      error     `json:"-"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: getStatusCode(code),
		Timestamp:  time.Now().UTC(),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message)
	appErr.Cause = err
	return appErr
}

func Internal(message string) *AppError {
	return New(CodeInternal, message)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message)
}

func BadRequest(message string) *AppError {
	return New(CodeBadRequest, message)
}

func BadRequestWrap(err error, message string) *AppError {
	return Wrap(err, CodeBadRequest, message)
}

func RateLimit(message string) *AppError {
	return New(CodeRateLimit, message)
}

// FromAnalysis translates ingestion and scoring failures into user facing
// errors, one code per failure kind. Unknown errors become internal errors.
func FromAnalysis(err error) *AppError {
	var (
		appErr     *AppError
		schemaErr  *rfm.SchemaError
		scoringErr *rfm.ScoringError
		parseErr   *ingest.ParseError
		tooLarge   *http.MaxBytesError
	)

	switch {
	case stderrors.As(err, &appErr):
		return appErr
	case stderrors.As(err, &schemaErr):
		e := Wrap(err, CodeSchema, "The dataset is missing required columns")
		e.Fields = schemaErr.Missing
		e.Details = fmt.Sprintf("Add the columns %v and upload again. Required: %v", schemaErr.Missing, rfm.RequiredColumns)
		return e
	case stderrors.As(err, &scoringErr):
		e := Wrap(err, CodeScoring, fmt.Sprintf("Not enough distinct %s values to form five score bins", scoringErr.Metric))
		e.Fields = []string{string(scoringErr.Metric)}
		e.Details = fmt.Sprintf("%s has %d distinct values; at least 5 are needed. Upload a dataset with more customers.",
			scoringErr.Metric, scoringErr.Distinct)
		return e
	case stderrors.Is(err, rfm.ErrEmptyInput):
		return Wrap(err, CodeEmptyInput, "The dataset contains no transactions")
	case stderrors.As(err, &parseErr):
		e := Wrap(err, CodeParse, fmt.Sprintf("Row %d has an invalid %s value", parseErr.Row, parseErr.Column))
		e.Fields = []string{parseErr.Column}
		e.Details = parseErr.Error()
		return e
	case stderrors.Is(err, ingest.ErrUnsupportedFormat):
		return Wrap(err, CodeUnsupportedMedia, "Upload a .csv or .xlsx file")
	case stderrors.Is(err, ingest.ErrTooManyRows), stderrors.As(err, &tooLarge):
		return Wrap(err, CodeTooLarge, "The dataset is larger than this deployment accepts")
	default:
		return Wrap(err, CodeInternal, "An unexpected error occurred")
	}
}

func getStatusCode(code ErrorCode) int {
	switch code {
	case CodeBadRequest, CodeParse:
		return http.StatusBadRequest
	case CodeSchema, CodeScoring, CodeEmptyInput:
		return http.StatusUnprocessableEntity
	case CodeUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type ErrorResponse struct {
	Error   *AppError `json:"error"`
	Success bool      `json:"success"`
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, err error, requestID string) {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		appErr = Internal("An unexpected error occurred")
		appErr.Cause = err
	}

	appErr.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)

	response := ErrorResponse{
		Error:   appErr,
		Success: false,
	}

	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		logger.Error("failed to encode error response",
			"encode_error", encodeErr,
			"original_error", err,
			"request_id", requestID,
		)
		return
	}

	logLevel := slog.LevelError
	if appErr.StatusCode < 500 {
		logLevel = slog.LevelWarn
	}

	logger.Log(context.Background(), logLevel, "request failed",
		"error_code", appErr.Code,
		"error_message", appErr.Message,
		"status_code", appErr.StatusCode,
		"request_id", requestID,
		"cause", appErr.Cause,
	)
}

type SuccessResponse struct {
	Data    any  `json:"data"`
	Success bool `json:"success"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := SuccessResponse{
		Data:    data,
		Success: true,
	}

	json.NewEncoder(w).Encode(response)
}

func WriteSuccessWithHeaders(w http.ResponseWriter, data any, headers map[string]string) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	WriteSuccess(w, data)
}
