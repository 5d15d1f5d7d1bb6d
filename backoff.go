package libchat

import (
	"math"
	"math/rand"
	"time"
)

type backoffCalculator func(attempt int) time.Duration

// NewExponentialBackoff returns a calculator producing
// min(base*2^attempt, max) plus a uniform random jitter in [0, jitter).
// rnd must return a float in [0, 1); pass nil for math/rand.
func NewExponentialBackoff(
	base, max, jitter time.Duration,
	rnd func() float64,
) backoffCalculator {
	if rnd == nil {
		rnd = rand.Float64
	}
	return func(attempt int) time.Duration {
		delay := time.Duration(math.Min(
			float64(base)*math.Pow(2, float64(attempt)),
			float64(max),
		))
		return delay + time.Duration(rnd()*float64(jitter))
	}
}

// reconnector tracks involuntary disconnects within one episode chain and
// decides whether, and after how long, the next attempt happens.
type reconnector struct {
	calculator  backoffCalculator
	maxAttempts int
	attempts    int
}

func newReconnector(calculator backoffCalculator, maxAttempts int) *reconnector {
	return &reconnector{
		calculator:  calculator,
		maxAttempts: maxAttempts,
	}
}

// next records one involuntary disconnect. It returns the delay before the
// next attempt, or ok=false once the ceiling is reached and the session must
// shut down.
func (r *reconnector) next() (delay time.Duration, ok bool) {
	r.attempts++
	if r.attempts >= r.maxAttempts {
		return 0, false
	}
	return r.calculator(r.attempts - 1), true
}

// count returns the attempts recorded since the last reset.
func (r *reconnector) count() int {
	return r.attempts
}

// reset clears the attempt counter. Called on successful connect and on
// manual reconnect requests.
func (r *reconnector) reset() {
	r.attempts = 0
}
