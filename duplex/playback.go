package duplex

import (
	"fmt"
	"time"
)

// playback drains q into write in chunkSize pieces. A partial chunk is
// flushed when no data arrives within wait, and once more when the queue is
// closed. The first write error ends the loop.
func playback(q *playbackQueue, write func([]byte) error, chunkSize int, wait time.Duration) error {
	var buffer []byte

	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		err := write(buffer)
		buffer = nil
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDevice, err)
		}
		return nil
	}

	for {
		item, done, timedOut := q.pop(wait)
		if done {
			return flush()
		}
		if timedOut {
			if err := flush(); err != nil {
				return err
			}
			continue
		}

		buffer = append(buffer, item...)
		for len(buffer) >= chunkSize {
			chunk := buffer[:chunkSize]
			buffer = buffer[chunkSize:]
			if err := write(chunk); err != nil {
				return fmt.Errorf("%w: %w", ErrDevice, err)
			}
		}
	}
}
