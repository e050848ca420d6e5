package handlers

import (
	"context"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// UpdateHandler processes a single update
type UpdateHandler func(ctx context.Context, update tgbotapi.Update) error

// Dispatcher fans updates out to a fixed number of workers. Each update is
// handled independently: an error or panic while handling one update is
// logged and does not affect the others.
type Dispatcher struct {
	workers int
	handle  UpdateHandler
	logger  *logrus.Logger
}

// NewDispatcher creates a dispatcher with the given worker count
func NewDispatcher(workers int, handle UpdateHandler, logger *logrus.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		workers: workers,
		handle:  handle,
		logger:  logger,
	}
}

// Run consumes updates until the channel is closed or ctx is cancelled, then
// waits for in-flight updates to finish.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < d.workers; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case update, ok := <-updates:
					if !ok {
						return nil
					}
					d.process(ctx, worker, update)
				}
			}
		})
	}

	d.logger.WithField("workers", d.workers).Info("Dispatcher started")
	err := g.Wait()
	d.logger.Info("Dispatcher stopped")
	return err
}

func (d *Dispatcher) process(ctx context.Context, worker int, update tgbotapi.Update) {
	log := d.logger.WithFields(logrus.Fields{
		"worker":    worker,
		"update_id": update.UpdateID,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logrus.Fields{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Recovered from panic while handling update")
		}
	}()

	if err := d.handle(ctx, update); err != nil {
		log.WithError(err).Error("Failed to handle update")
	}
}
