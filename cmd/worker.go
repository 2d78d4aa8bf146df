package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerCtl/internal/broker"
	"brokerCtl/internal/config"
	"brokerCtl/internal/eventlog"
	"brokerCtl/internal/model"
	"brokerCtl/internal/worker"
)

// runTasks drives descs through a fresh broker until every chain ends or the
// process is interrupted, then prints a summary. It returns an error when any
// task did not complete.
func runTasks(ctx context.Context, out io.Writer, store worker.Recorder, cfg *config.Config, descs []model.TaskDescriptor) ([]model.Outcome, error) {
	p := newPrinter(out)
	lineHook, eventHook := p.hooks()
	logger := eventlog.New(eventlog.Options{
		GlobalPath:  cfg.LogPath,
		RotateBytes: cfg.LogRotationBytes,
		LineMirror:  lineHook,
		EventMirror: eventHook,
	})

	bc := cfg.BrokerConfig()
	bc.Logger = logger
	b, err := broker.New(bc)
	if err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal: %v. Shutting down...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	outcomes := worker.New(b, store).Run(ctx, descs, nil)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := b.Shutdown(shutdownCtx); err != nil {
		log.Printf("broker shutdown: %v", err)
	}
	if n := logger.Dropped(); n > 0 {
		log.Printf("%d log writes failed", n)
	}

	p.summary(outcomes)
	incomplete := 0
	for _, o := range outcomes {
		if o.State != model.StateCompleted {
			incomplete++
		}
	}
	if incomplete > 0 {
		return outcomes, fmt.Errorf("%d of %d tasks did not complete", incomplete, len(outcomes))
	}
	return outcomes, nil
}
