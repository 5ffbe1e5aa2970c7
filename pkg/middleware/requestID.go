package middleware

import (
	"context"

	"ctfex.com/pkg/common"
	"github.com/gin-gonic/gin"
)

// ReqId 读取或生成 X-Request-Id, 写进 gin ctx 和 request ctx, 并回写响应头
func ReqId() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(common.HeaderRequestID)
		if rid == "" {
			rid = common.NewRequestID()
		}
		c.Set(common.CtxKeyRequestID, rid)
		c.Header(common.HeaderRequestID, rid)
		ctx := context.WithValue(c.Request.Context(), common.CtxKeyRequestID, rid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
