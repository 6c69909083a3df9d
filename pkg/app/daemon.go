package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/sitterd/internal/reload"
)

// Daemon runs the configured modules until stopped. SIGHUP and changes to
// the configuration file restart the modules from the new file.
type Daemon struct {
	params Params

	rt      *runtime
	handler *reload.Handler
	watcher *reload.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
	watched chan struct{}
}

// NewDaemon creates a daemon. Nothing is loaded before Start.
func NewDaemon(params Params) *Daemon {
	return &Daemon{params: params}
}

// Start loads the configuration, starts every module and returns. It does
// not block.
func (d *Daemon) Start() error {
	if d.cancel != nil {
		return errors.New("app: daemon already started")
	}

	rt, err := newRuntime(context.Background(), d.params)
	if err != nil {
		return err
	}

	handler := reload.NewHandler(rt.build, rt.logger)
	if err := handler.Start(rt.cfg); err != nil {
		rt.close(context.Background())
		return err
	}

	rt.logger.Info("sitterd started",
		"version", d.params.Version,
		"config", rt.cfgPath,
		"data_dir", rt.dataDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	watcher := reload.NewWatcher(rt.cfgPath, reload.DefaultPollInterval)

	d.rt, d.handler, d.watcher = rt, handler, watcher
	d.cancel = cancel
	d.done = make(chan struct{})
	d.watched = make(chan struct{})
	go func() {
		defer close(d.watched)
		watcher.Run(ctx)
	}()
	go d.loop(ctx)
	return nil
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger := d.rt.logger
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("SIGHUP received, reloading configuration")
		case evt, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			logger.Info("config file changed, reloading", "path", evt.ConfigPath, "digest", evt.Digest[:12])
		}
		if err := d.handler.HandleReload(ctx, d.rt.cfgPath); err != nil {
			logger.Error("reload failed", "error", err)
		}
	}
}

// Stop stops every module and releases process-wide resources.
func (d *Daemon) Stop() error {
	if d.cancel == nil {
		return nil
	}
	d.cancel()
	<-d.done
	<-d.watched
	d.handler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	d.rt.close(ctx)
	d.rt.logger.Info("shutdown complete")

	d.cancel = nil
	return nil
}
