package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"koyomi/internal/core"
	"koyomi/plugins/calendar"
	"koyomi/plugins/reminder"
	"koyomi/plugins/replies"
	"koyomi/plugins/rotation"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json/yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := core.NewApp(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	app.Plugins().Register(
		replies.New(),
		rotation.New(),
		reminder.New(),
		calendar.New(),
	)

	if err := app.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case <-app.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	_ = app.Stop(context.Background())

	if err := app.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
