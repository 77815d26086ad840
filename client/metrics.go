package client

import "github.com/ethereum/go-ethereum/metrics"

var (
	sessionCounter   = metrics.NewRegisteredCounter("ftclient/sessions", nil)
	rejectedCounter  = metrics.NewRegisteredCounter("ftclient/control/rejected", nil)
	cancelledCounter = metrics.NewRegisteredCounter("ftclient/control/cancelled", nil)
	linesCounter     = metrics.NewRegisteredCounter("ftclient/data/lines", nil)
	bytesCounter     = metrics.NewRegisteredCounter("ftclient/file/bytes", nil)
	failedCounter    = metrics.NewRegisteredCounter("ftclient/failed", nil)
	sessionTimer     = metrics.NewRegisteredTimer("ftclient/duration", nil)
)
