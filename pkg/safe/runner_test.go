package safe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGo_PanicDoesNotEscape(t *testing.T) {
	done := make(chan struct{})
	Go(func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGoCtx_PassesContext(t *testing.T) {
	type key struct{}
	got := make(chan interface{}, 1)
	ctx := context.WithValue(context.Background(), key{}, "v")

	GoCtx(ctx, func(ctx context.Context) { got <- ctx.Value(key{}) })

	assert.Equal(t, "v", <-got)
}
