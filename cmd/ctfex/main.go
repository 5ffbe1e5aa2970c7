package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"ctfex.com/internal/app"
)

func main() {
	configName := flag.String("config", "ctfex", "config name, read from ./config/<name>.yaml")
	flag.Parse()

	// 1. 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 配置
	a, err := app.New(*configName)
	if err != nil {
		log.Fatalf("init ctfex: %v", err)
	}

	// 3. 依赖: 日志 / trace / 账本 / 市场 / 撮合引擎 / broker
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()
	if err := a.Start(ctx); err != nil {
		log.Printf("start ctfex: %v", err)
		return
	}

	// 4. 跑到收到退出信号
	if err := a.Run(ctx); err != nil {
		log.Printf("ctfex exit: %v", err)
		return
	}
	log.Println("ctfex exit")
}
