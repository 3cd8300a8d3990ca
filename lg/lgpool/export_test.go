package lgpool

import "time"

// SetNow replaces the pool's clock.
func SetNow(p *Pool, now func() time.Time) {
	p.now = now
}

var BackoffFor = backoffFor
