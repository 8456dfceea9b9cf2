package core

// AttemptFunc performs one transfer attempt; n counts from 1.
type AttemptFunc func(n int) TransferOutcome

// RunWithRetry calls attempt up to maxAttempts times with no delay between
// attempts; mirror failover one level up supplies the diversity. The file at
// destPath is removed after every failed attempt so the next one starts
// clean. Cancellation stops the loop at once with an interrupted outcome.
// It returns the final outcome and the number of attempts made.
func RunWithRetry(maxAttempts int, attempt AttemptFunc, destPath string, fs FileSystem, cancel *CancelSignal, log Logger) (TransferOutcome, int) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last TransferOutcome
	for n := 1; n <= maxAttempts; n++ {
		if cancel.Cancelled() {
			return transferInterrupted(last.Bytes), n - 1
		}

		last = attempt(n)
		if last.Succeeded() || last.Interrupted() {
			return last, n
		}
		if cancel.Cancelled() {
			return transferInterrupted(last.Bytes), n
		}

		if err := removeQuietly(fs, destPath); err != nil && log != nil {
			log.Warn("Failed to remove partial file %s: %v", destPath, err)
		}

		if log != nil {
			if n < maxAttempts {
				log.Warn("Attempt %d/%d failed (%s), retrying", n, maxAttempts, last.Cause())
			} else {
				log.Warn("Attempt %d/%d failed (%s)", n, maxAttempts, last.Cause())
			}
		}
	}

	return last, maxAttempts
}
