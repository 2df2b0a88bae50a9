package sink

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joacorob/evmsync/internal/model"
)

// RetrySink decorates another Sink adding automatic retry capabilities. It
// attempts the write up to the configured number of attempts, waiting the
// specified delay between retries, and propagates the last attempt's error
// if all retries fail.
//
// If attempts is < 1, it defaults to 1 (no retries). If delayMs is 0, it
// defaults to 1000ms.
type RetrySink struct {
	inner    Sink
	attempts int
	delay    time.Duration
}

// NewRetrySink builds a Sink with retry behaviour around inner.
func NewRetrySink(inner Sink, attempts int, delayMs int) Sink {
	if inner == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	if delayMs == 0 {
		delayMs = 1000
	}
	return &RetrySink{
		inner:    inner,
		attempts: attempts,
		delay:    time.Duration(delayMs) * time.Millisecond,
	}
}

// Write forwards the call to the wrapped sink, retrying on failure.
func (r *RetrySink) Write(evt model.Event) error {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = r.inner.Write(evt)
		if err == nil {
			return nil
		}

		logrus.Warnf("sink write failed (attempt %d/%d): %v", attempt, r.attempts, err)

		if attempt < r.attempts {
			time.Sleep(r.delay)
		}
	}
	return err
}
