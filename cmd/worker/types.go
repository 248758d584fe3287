package main

// recordOutcome is the result of processing one SQS message.
type recordOutcome struct {
	processed  int // upload events completed (a message may carry several)
	bytesSaved int64
	err        error
}

// batchSummary accumulates outcomes across a batch for logging and metrics.
type batchSummary struct {
	processed  int
	failed     int
	bytesSaved int64
}

func (s *batchSummary) add(o recordOutcome) {
	s.processed += o.processed
	s.bytesSaved += o.bytesSaved
	if o.err != nil {
		s.failed++
	}
}
