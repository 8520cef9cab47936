// CLAUDE:SUMMARY sqlite-trace database/sql driver: logs slow or failing store statements and feeds the SQL latency histogram.
// Package trace registers "sqlite-trace", a modernc.org/sqlite driver that
// times every statement the document store runs. Switch the store to it
// with dbopen.WithDriver(trace.DriverName) and attach metrics with
// SetObserver(metrics.ObserveSQL).
//
// Statements log at debug, at warn past the slow threshold and at error on
// failure, carrying the request id of the HTTP or MCP call that caused them.
// Fast PRAGMAs are not logged.
package trace

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the database/sql name of the tracing driver.
const DriverName = "sqlite-trace"

// Observer receives the outcome of every traced statement.
type Observer func(op string, d time.Duration, err error)

var (
	observer   Observer
	observerMu sync.RWMutex

	slowNanos atomic.Int64
)

// SetObserver installs the global statement observer. Pass nil to disable.
func SetObserver(o Observer) {
	observerMu.Lock()
	observer = o
	observerMu.Unlock()
}

func getObserver() Observer {
	observerMu.RLock()
	defer observerMu.RUnlock()
	return observer
}

// SetSlowThreshold sets the duration above which statements log at Warn.
func SetSlowThreshold(d time.Duration) { slowNanos.Store(int64(d)) }

func slowThreshold() time.Duration { return time.Duration(slowNanos.Load()) }

func init() {
	SetSlowThreshold(100 * time.Millisecond)
	sql.Register(DriverName, &TracingDriver{
		Driver: &sqlite.Driver{},
	})
}
