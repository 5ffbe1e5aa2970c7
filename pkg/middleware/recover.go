package middleware

import (
	"net/http"
	"runtime/debug"

	"ctfex.com/pkg/common"
	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func Recover() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "http panic",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", err),
					zap.ByteString("stack", debug.Stack()),
				)
				common.Fail(c, http.StatusInternalServerError, xerr.ServerCommonError, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
