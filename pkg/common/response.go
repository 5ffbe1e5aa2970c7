package common

import (
	"errors"
	"net/http"

	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = logger.RequestIdKey
)

// Response 统一返回格式, 错误时 data=null
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func NewRequestID() string { return uuid.NewString() }

func RequestIDFromGin(c *gin.Context) string {
	if v, ok := c.Get(CtxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    xerr.OK,
		Message: http.StatusText(http.StatusOK),
		Data:    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, message string) {
	c.JSON(httpStatus, Response{Code: code, Message: message})
}

// FailErr maps err to an HTTP status by its xerr kind. Internal errors are
// logged and answered with a fixed message.
func FailErr(c *gin.Context, err error) {
	var ce *xerr.CodeError
	if !errors.As(err, &ce) {
		logger.Error(c.Request.Context(), "http internal error",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, xerr.MapErrMsg(xerr.ServerCommonError))
		return
	}
	status := HTTPStatus(ce.Kind)
	if status >= http.StatusInternalServerError {
		logger.Warn(c.Request.Context(), "http error",
			zap.Int("biz_code", ce.Code), zap.Error(err))
	}
	Fail(c, status, ce.Code, ce.Msg)
}

func HTTPStatus(k xerr.Kind) int {
	switch k {
	case xerr.KindValidation:
		return http.StatusBadRequest
	case xerr.KindPolicy, xerr.KindMarketState, xerr.KindResource:
		return http.StatusUnprocessableEntity
	case xerr.KindAuthorization:
		return http.StatusForbidden
	case xerr.KindNotFound:
		return http.StatusNotFound
	case xerr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
