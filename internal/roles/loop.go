package roles

import (
	"context"
	"errors"
	"time"

	"allsky/internal/workqueue"
)

// handler processes one message. Returning stop ends the worker cleanly.
type handler func(ctx context.Context, msg workqueue.Message) (stop bool, err error)

// serve drains q until a stop sentinel, an error, or ctx ends.
func serve(ctx context.Context, q *workqueue.Queue, handle handler) error {
	for {
		msg, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if msg.Kind == workqueue.KindStop {
			return nil
		}
		stop, err := handle(ctx, msg)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// getWithin waits up to d for a message. ok is false when d elapsed first.
func getWithin(ctx context.Context, q *workqueue.Queue, d time.Duration) (workqueue.Message, bool, error) {
	if d <= 0 {
		if msg, ok := q.TryGet(); ok {
			return msg, true, nil
		}
		return workqueue.Message{}, false, ctx.Err()
	}
	waitCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	msg, err := q.Get(waitCtx)
	if err == nil {
		return msg, true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return workqueue.Message{}, false, nil
	}
	return workqueue.Message{}, false, err
}
