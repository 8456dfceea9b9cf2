package core

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// chunkSize bounds memory per transfer and the worst-case cancellation latency.
const chunkSize = 64 * 1024

// TransferExecutor streams one remote file to disk.
type TransferExecutor struct {
	client    HTTPClient
	fs        FileSystem
	timeout   time.Duration
	userAgent string
	cancel    *CancelSignal
}

// NewTransferExecutor builds an executor sharing the orchestrator's dependencies.
func NewTransferExecutor(client HTTPClient, fs FileSystem, cfg *DownloadConfig, cancel *CancelSignal) *TransferExecutor {
	return &TransferExecutor{
		client:    client,
		fs:        fs,
		timeout:   cfg.TransferTimeout,
		userAgent: cfg.UserAgent,
		cancel:    cancel,
	}
}

// Stream truncates destPath and copies the GET response body into it chunk by
// chunk, reporting every chunk to sink. When the cancel signal is seen it
// returns TransferInterrupted and leaves the partial file for the caller.
func (e *TransferExecutor) Stream(ctx context.Context, url, destPath string, sink ProgressSink) TransferOutcome {
	if e.cancel.Cancelled() {
		return transferInterrupted(0)
	}

	ctx, release := e.cancel.Context(ctx)
	defer release()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transferFailure(TransferNetworkError, 0, errors.Wrap(err, "failed to create download request"))
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		if e.cancel.Cancelled() {
			return transferInterrupted(0)
		}
		return transferFailure(TransferNetworkError, 0, errors.Wrap(err, "download request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return transferStatus(resp.StatusCode)
	}

	file, err := e.fs.Create(destPath)
	if err != nil {
		return transferFailure(TransferIOError, 0, errors.Wrapf(err, "failed to create local file: %s", destPath))
	}

	written, outcome := e.copyChunks(file, resp.Body, sink)
	if closeErr := file.Close(); closeErr != nil && outcome.Succeeded() {
		return transferFailure(TransferIOError, written, errors.Wrapf(closeErr, "failed to close local file: %s", destPath))
	}
	return outcome
}

func (e *TransferExecutor) copyChunks(dst io.Writer, src io.Reader, sink ProgressSink) (uint64, TransferOutcome) {
	buf := make([]byte, chunkSize)
	var written uint64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, transferFailure(TransferIOError, written, errors.Wrap(err, "failed to write file to disk"))
			}
			written += uint64(n)
			if sink != nil {
				sink.AddDownloaded(uint64(n))
			}
		}

		if e.cancel.Cancelled() {
			return written, transferInterrupted(written)
		}

		if readErr == io.EOF {
			return written, transferSuccess(written)
		}
		if readErr != nil {
			return written, transferFailure(TransferNetworkError, written, errors.Wrap(readErr, "read error"))
		}
	}
}
