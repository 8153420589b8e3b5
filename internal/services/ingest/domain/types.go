// Package domain defines the ingest job types and ports
package domain

import "time"

// Transfer is one normalized on-chain token movement bound for analytics
type Transfer struct {
	TxHash    string
	Chain     string
	TokenAddr string
	Symbol    string
	FromAddr  string
	ToAddr    string
	Amount    float64
	AmountUSD float64
	BlockTime time.Time
}

// RunInfo summarizes a finished job run for the bookkeeping table
type RunInfo struct {
	Status  string // "ok" or "error"
	Rows    int
	TotalMS int
	ErrText string
}

// AccuracyPoint is one predicted-vs-realized drift measurement
type AccuracyPoint struct {
	Symbol    string
	Hour      time.Time
	Predicted float64
	Realized  float64
	Drift     float64
}
