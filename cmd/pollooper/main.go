package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pollooper/internal/app"
	logx "pollooper/pkg/logx"
)

const (
	exitOK          = 0
	exitStartup     = 1
	exitPollFailure = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./pollooper.yaml", "path to config (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.WithOutput(os.Stdout))
	if err != nil {
		logx.NewConsole("error").Error("startup failed", logx.String("config", cfgPath), logx.Err(err))
		return exitStartup
	}
	if err := a.Start(ctx); err != nil {
		logx.NewConsole("error").Error("start failed", logx.Err(err))
		return exitStartup
	}

	stopCrossing := watchCrossingSignal(a)
	runErr := a.Run(ctx)
	stopCrossing()

	reason := app.Reason(runErr, ctx.Err() != nil)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()

	fmt.Println("That's all folks")

	switch reason {
	case app.StopPollFailure:
		return exitPollFailure
	case app.StopFatalError:
		return exitStartup
	default:
		return exitOK
	}
}
