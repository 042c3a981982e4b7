package client

import (
	"sync"

	"go.uber.org/zap"
)

// Player renders one reply chunk. Play blocks until the chunk finishes or
// fails; Stop interrupts an in-flight Play and releases whatever per-chunk
// resource the player holds.
type Player interface {
	Play(chunk []byte) error
	Stop()
}

// PlaybackQueue plays reply chunks strictly in arrival order, one at a
// time. A chunk starts only after the previous one completed or failed; a
// failed chunk is logged and skipped, the queue moves on. Reset interrupts
// the current chunk and drops everything still queued.
type PlaybackQueue struct {
	player Player
	logger *zap.Logger

	wake chan struct{}
	quit chan struct{}

	mu      sync.Mutex
	queue   [][]byte
	playing bool
	closed  bool
}

// NewPlaybackQueue creates the queue and starts its playback worker.
func NewPlaybackQueue(player Player, logger *zap.Logger) *PlaybackQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &PlaybackQueue{
		player: player,
		logger: logger,
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends one chunk. Chunks enqueued after Close are dropped.
func (q *PlaybackQueue) Enqueue(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.queue = append(q.queue, chunk)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Reset stops the chunk being played and drops all queued chunks.
func (q *PlaybackQueue) Reset() {
	q.mu.Lock()
	dropped := len(q.queue)
	q.queue = nil
	q.mu.Unlock()

	q.player.Stop()

	if dropped > 0 {
		q.logger.Debug("Dropped queued reply chunks", zap.Int("count", dropped))
	}
}

// Idle reports whether nothing is playing and nothing is queued.
func (q *PlaybackQueue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing && len(q.queue) == 0
}

// Close stops playback permanently.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.queue = nil
	q.mu.Unlock()

	q.player.Stop()
	close(q.quit)
}

func (q *PlaybackQueue) run() {
	for {
		select {
		case <-q.quit:
			return
		case <-q.wake:
		}
		q.drain()
	}
}

// drain plays queued chunks until the queue is empty or the queue closes.
func (q *PlaybackQueue) drain() {
	for {
		q.mu.Lock()
		if q.closed || len(q.queue) == 0 {
			q.mu.Unlock()
			return
		}
		chunk := q.queue[0]
		q.queue = q.queue[1:]
		q.playing = true
		q.mu.Unlock()

		err := q.player.Play(chunk)

		q.mu.Lock()
		q.playing = false
		q.mu.Unlock()

		if err != nil {
			q.logger.Warn("Skipping reply chunk after playback failure",
				zap.Int("bytes", len(chunk)),
				zap.Error(err))
		}
	}
}
