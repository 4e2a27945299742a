package imagesremover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/placeshare/internal/models"
)

type recordingDeleter struct {
	mu      sync.Mutex
	deleted []string
	failOn  string
}

func (d *recordingDeleter) Delete(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if path == d.failOn {
		return errors.New("permission denied")
	}
	d.deleted = append(d.deleted, path)
	return nil
}

func (d *recordingDeleter) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}

func TestRunProcessesQueuedJobs(t *testing.T) {
	deleter := &recordingDeleter{}
	remover := New(deleter, 10, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remover.Run(ctx)

	assert.True(t, remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p1", ImagePath: "uploads/images/a.png"}))
	assert.True(t, remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p2", ImagePath: "uploads/images/b.png"}))

	assert.Eventually(t, func() bool {
		return len(deleter.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []string{"uploads/images/a.png", "uploads/images/b.png"}, deleter.snapshot())
}

func TestRunFlushesOnCancel(t *testing.T) {
	deleter := &recordingDeleter{}
	remover := New(deleter, 10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	remover.Run(ctx)
	remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p1", ImagePath: "uploads/images/a.png"})
	cancel()

	select {
	case <-remover.Done():
	case <-time.After(time.Second):
		t.Fatal("remover did not stop")
	}
	assert.Equal(t, []string{"uploads/images/a.png"}, deleter.snapshot())
}

func TestErrorsAreReported(t *testing.T) {
	deleter := &recordingDeleter{failOn: "uploads/images/locked.png"}
	remover := New(deleter, 10, 10*time.Millisecond)

	errs := make(chan error, 1)
	remover.ListenErrors(func(err error) {
		errs <- err
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	remover.Run(ctx)
	remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p9", ImagePath: "uploads/images/locked.png"})

	select {
	case err := <-errs:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "p9")
	case <-time.After(time.Second):
		t.Fatal("no error reported")
	}
}

func TestEnqueueJobDoesNotBlockWhenFull(t *testing.T) {
	remover := New(&recordingDeleter{}, 1, time.Hour)

	assert.True(t, remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p1", ImagePath: "a.png"}))
	assert.False(t, remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p2", ImagePath: "b.png"}))
	assert.True(t, remover.EnqueueJob(&models.ImageDeleteJob{PlaceID: "p3"}), "jobs without an image are no-ops")
}
