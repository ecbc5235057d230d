package redisx

import "time"

const (
	// Cache order status: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Fixed-window rate limit counter: ratelimit:{ip}:{window}
	KeyRateLimit = "ratelimit:%s:%d"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
