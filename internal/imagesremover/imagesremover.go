package imagesremover

import (
	"context"
	"fmt"
	"time"

	"github.com/patric-chuzhbe/placeshare/internal/logger"
	"github.com/patric-chuzhbe/placeshare/internal/models"
)

type imageDeleter interface {
	Delete(path string) error
}

// ImagesRemover releases images of deleted places in the background. Jobs
// are collected from a queue and processed in batches on every tick.
type ImagesRemover struct {
	queue                    chan *models.ImageDeleteJob
	store                    imageDeleter
	delayBetweenQueueFetches time.Duration
	errorChannel             chan error
	done                     chan struct{}
}

func New(
	store imageDeleter,
	channelCapacity int,
	delayBetweenQueueFetches time.Duration,
) *ImagesRemover {
	return &ImagesRemover{
		store:                    store,
		queue:                    make(chan *models.ImageDeleteJob, channelCapacity),
		delayBetweenQueueFetches: delayBetweenQueueFetches,
		errorChannel:             make(chan error, channelCapacity),
		done:                     make(chan struct{}),
	}
}

func (r *ImagesRemover) ListenErrors(callback func(error)) {
	go func() {
		for err := range r.errorChannel {
			callback(err)
		}
	}()
}

// EnqueueJob schedules a removal without blocking. It reports false when
// the queue is full and the job was dropped.
func (r *ImagesRemover) EnqueueJob(job *models.ImageDeleteJob) bool {
	if job == nil || job.ImagePath == "" {
		return true
	}

	select {
	case r.queue <- job:
		return true
	default:
		logger.Log.Warnw("images remover queue is full, dropping job", "place", job.PlaceID, "image", job.ImagePath)
		return false
	}
}

// Done is closed once Run has stopped and flushed the pending jobs.
func (r *ImagesRemover) Done() <-chan struct{} {
	return r.done
}

func (r *ImagesRemover) reportError(err error) {
	select {
	case r.errorChannel <- err:
	default:
		logger.Log.Errorw("images remover error dropped", "error", err)
	}
}

func (r *ImagesRemover) process(jobs []*models.ImageDeleteJob) {
	removed := 0
	for _, job := range jobs {
		if err := r.store.Delete(job.ImagePath); err != nil {
			r.reportError(fmt.Errorf("removing image of place %s: %w", job.PlaceID, err))
			continue
		}
		removed++
	}
	logger.Log.Infof("processed removing of %d images", removed)
}

func (r *ImagesRemover) drain(jobs []*models.ImageDeleteJob) []*models.ImageDeleteJob {
	for {
		select {
		case job := <-r.queue:
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}

// Run starts the worker goroutine. Cancelling ctx flushes what is queued,
// closes the error channel and then Done.
func (r *ImagesRemover) Run(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.delayBetweenQueueFetches)
		defer ticker.Stop()
		defer close(r.done)
		defer close(r.errorChannel)

		var jobs []*models.ImageDeleteJob

		for {
			select {
			case job := <-r.queue:
				jobs = append(jobs, job)
			case <-ticker.C:
				if len(jobs) == 0 {
					continue
				}
				r.process(jobs)
				jobs = nil
			case <-ctx.Done():
				jobs = r.drain(jobs)
				if len(jobs) > 0 {
					r.process(jobs)
				}
				return
			}
		}
	}()
}
