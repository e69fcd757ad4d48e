package api

import "sync/atomic"

// process-wide request counters, surfaced by the health payload
var (
	totalRequests   uint64
	total4xx        uint64
	total5xx        uint64
	bytesIn         uint64
	bytesOut        uint64
	totalDurationNs uint64
)

type counters struct {
	Requests  uint64 `json:"requests"`
	Errors4xx uint64 `json:"errors4xx"`
	Errors5xx uint64 `json:"errors5xx"`
	BytesIn   uint64 `json:"bytesIn"`
	BytesOut  uint64 `json:"bytesOut"`
}

func snapshotCounters() counters {
	return counters{
		Requests:  atomic.LoadUint64(&totalRequests),
		Errors4xx: atomic.LoadUint64(&total4xx),
		Errors5xx: atomic.LoadUint64(&total5xx),
		BytesIn:   atomic.LoadUint64(&bytesIn),
		BytesOut:  atomic.LoadUint64(&bytesOut),
	}
}
