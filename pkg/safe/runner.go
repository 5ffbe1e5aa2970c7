package safe

import (
	"context"
	"runtime/debug"

	"ctfex.com/pkg/logger"
	"go.uber.org/zap"
)

// Go 安全启动协程: panic 只记日志, 不拖垮进程
func Go(fn func()) {
	GoCtx(context.Background(), func(context.Context) { fn() })
}

// GoCtx keeps ctx so the panic log carries trace/request ids.
func GoCtx(ctx context.Context, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		defer Recover(ctx, "goroutine")
		fn(ctx)
	}()
}

// Recover must be deferred directly.
func Recover(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logger.Error(ctx, "panic recovered",
			zap.String("where", where),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
