package internaldefs

import (
	redisession "github.com/jhfangying/RedisSessionHandler"
)

// CounterDef binds a metric ID to its exported name and help text.
type CounterDef struct {
	ID   redisession.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram metric ID to its exported name and help text.
type HistogramDef struct {
	ID   redisession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: redisession.MetricSessionOpened, Name: "redisession_session_opened_total", Help: "Session handlers opened."},
	{ID: redisession.MetricSessionRead, Name: "redisession_session_read_total", Help: "Session payload reads."},
	{ID: redisession.MetricSessionWritten, Name: "redisession_session_written_total", Help: "Session payload writes."},
	{ID: redisession.MetricTimestampRefreshed, Name: "redisession_timestamp_refreshed_total", Help: "TTL-only refreshes of unmodified sessions."},
	{ID: redisession.MetricSessionDestroyed, Name: "redisession_session_destroyed_total", Help: "Sessions destroyed."},
	{ID: redisession.MetricIDGenerated, Name: "redisession_id_generated_total", Help: "Session identifiers minted in-process."},
	{ID: redisession.MetricIDRegenerated, Name: "redisession_id_regenerated_total", Help: "Identifiers replaced after a fixation/staleness check."},
	{ID: redisession.MetricLockAcquired, Name: "redisession_lock_acquired_total", Help: "Successful session lock acquisitions."},
	{ID: redisession.MetricLockContention, Name: "redisession_lock_contention_total", Help: "Lock acquisitions that required at least one retry."},
	{ID: redisession.MetricLockAborted, Name: "redisession_lock_aborted_total", Help: "Lock acquisitions abandoned by cancellation or timeout."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: redisession.MetricLockWaitLatency, Name: "redisession_lock_wait_seconds", Help: "Lock acquisition wait-time histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, as label values.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with identifier-safe names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to 8 buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
