package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"nexus-ledger/internal/pkg/database"
	"nexus-ledger/internal/pkg/logger"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var validate = validator.New()

// ErrorBody 统一的错误响应
type ErrorBody struct {
	Error string `json:"error"`
}

// Context 从请求头中恢复上游的链路上下文
func Context(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

// WriteJSON 输出 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Logger().Warn().Err(err).Msg("failed to encode response")
	}
}

// WriteError 输出错误。锁超时统一为 503，调用方可以整体重试；
// 其余错误由 status 决定，status 为 0 时返回 500。
func WriteError(w http.ResponseWriter, r *http.Request, err error, status int) {
	if database.IsLockTimeout(err) {
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	WriteJSON(w, status, ErrorBody{Error: err.Error()})
}

// DecodeJSON 解析并校验请求体
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	if err := validate.Struct(v); err != nil {
		return errors.Wrap(err, "invalid request")
	}
	return nil
}

// PathUint64 读取路径参数
func PathUint64(r *http.Request, name string) (uint64, error) {
	v, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid %s %q", name, r.PathValue(name))
	}
	return v, nil
}

// QueryInt 读取整数查询参数，缺省或非法时返回 def
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
