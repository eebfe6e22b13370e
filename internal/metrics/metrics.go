package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"marketsync/logger"
)

var (
	framesReceived  int64
	framesDropped   int64
	deltasApplied   int64
	deltasDuplicate int64
	desyncs         int64
	resyncs         int64
	reconnects      int64
	fetchErrors     int64
)

func IncFramesReceived()  { atomic.AddInt64(&framesReceived, 1) }
func IncFramesDropped()   { atomic.AddInt64(&framesDropped, 1) }
func IncDeltasApplied()   { atomic.AddInt64(&deltasApplied, 1) }
func IncDeltasDuplicate() { atomic.AddInt64(&deltasDuplicate, 1) }
func IncDesyncs()         { atomic.AddInt64(&desyncs, 1) }
func IncResyncs()         { atomic.AddInt64(&resyncs, 1) }
func IncReconnects()      { atomic.AddInt64(&reconnects, 1) }
func IncFetchErrors()     { atomic.AddInt64(&fetchErrors, 1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	FramesReceived  int64 `json:"frames_received"`
	FramesDropped   int64 `json:"frames_dropped"`
	DeltasApplied   int64 `json:"deltas_applied"`
	DeltasDuplicate int64 `json:"deltas_duplicate"`
	Desyncs         int64 `json:"desyncs"`
	Resyncs         int64 `json:"resyncs"`
	Reconnects      int64 `json:"reconnects"`
	FetchErrors     int64 `json:"fetch_errors"`
}

func Read() Snapshot {
	return Snapshot{
		FramesReceived:  atomic.LoadInt64(&framesReceived),
		FramesDropped:   atomic.LoadInt64(&framesDropped),
		DeltasApplied:   atomic.LoadInt64(&deltasApplied),
		DeltasDuplicate: atomic.LoadInt64(&deltasDuplicate),
		Desyncs:         atomic.LoadInt64(&desyncs),
		Resyncs:         atomic.LoadInt64(&resyncs),
		Reconnects:      atomic.LoadInt64(&reconnects),
		FetchErrors:     atomic.LoadInt64(&fetchErrors),
	}
}

// Reset zeroes every counter. Test helper.
func Reset() {
	atomic.StoreInt64(&framesReceived, 0)
	atomic.StoreInt64(&framesDropped, 0)
	atomic.StoreInt64(&deltasApplied, 0)
	atomic.StoreInt64(&deltasDuplicate, 0)
	atomic.StoreInt64(&desyncs, 0)
	atomic.StoreInt64(&resyncs, 0)
	atomic.StoreInt64(&reconnects, 0)
	atomic.StoreInt64(&fetchErrors, 0)
}

// StartReporter periodically logs the counter snapshot and forwards it to
// CloudWatch when the publisher is configured.
func StartReporter(ctx context.Context, log *logger.Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := Read()
				log.WithComponent("metrics").WithFields(logger.Fields{
					"frames_received":  snap.FramesReceived,
					"frames_dropped":   snap.FramesDropped,
					"deltas_applied":   snap.DeltasApplied,
					"deltas_duplicate": snap.DeltasDuplicate,
					"desyncs":          snap.Desyncs,
					"resyncs":          snap.Resyncs,
					"reconnects":       snap.Reconnects,
					"fetch_errors":     snap.FetchErrors,
				}).Info("stream metrics")

				logger.PublishMetric(ctx, "stream", "FramesReceived", float64(snap.FramesReceived))
				logger.PublishMetric(ctx, "stream", "Desyncs", float64(snap.Desyncs))
				logger.PublishMetric(ctx, "stream", "Reconnects", float64(snap.Reconnects))
			}
		}
	}()
}
