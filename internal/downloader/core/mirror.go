package core

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "mirrordl/internal/errors"
)

// HTTPClient represents the subset of http.Client methods required by the downloader.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ProbeResult is what a metadata-only request learned about a remote file.
type ProbeResult struct {
	Status    int
	Size      uint64
	SizeKnown bool
}

// MirrorResolver probes mirrors with HEAD requests.
type MirrorResolver struct {
	client    HTTPClient
	timeout   time.Duration
	userAgent string
	cancel    *CancelSignal
}

// NewMirrorResolver builds a resolver sharing the orchestrator's client and cancel signal.
func NewMirrorResolver(client HTTPClient, cfg *DownloadConfig, cancel *CancelSignal) *MirrorResolver {
	return &MirrorResolver{
		client:    client,
		timeout:   cfg.ProbeTimeout,
		userAgent: cfg.UserAgent,
		cancel:    cancel,
	}
}

// Probe issues a HEAD request. Any 2xx status is a success; the size is
// reported when Content-Length parses.
func (r *MirrorResolver) Probe(ctx context.Context, url string) (ProbeResult, error) {
	if r.cancel.Cancelled() {
		return ProbeResult{}, ErrInterrupted
	}

	ctx, release := r.cancel.Context(ctx)
	defer release()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ProbeResult{}, apperrors.NetworkError(apperrors.CodeMirrorUnavailable, "failed to create probe request", err).
			WithModule("downloader.core").
			WithOperation("Probe").
			WithField("url", url)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		if r.cancel.Cancelled() {
			return ProbeResult{}, ErrInterrupted
		}
		return ProbeResult{}, apperrors.NetworkError(apperrors.CodeMirrorUnavailable, "probe request failed", err).
			WithModule("downloader.core").
			WithOperation("Probe").
			WithField("url", url)
	}
	resp.Body.Close()

	result := ProbeResult{Status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, apperrors.NetworkError(apperrors.CodeMirrorUnavailable, "probe returned unexpected status", nil).
			WithModule("downloader.core").
			WithOperation("Probe").
			WithFields(apperrors.Metadata{
				"url":    url,
				"status": resp.StatusCode,
			})
	}

	result.Size, result.SizeKnown = contentLength(resp)
	return result, nil
}

// ResolveSize walks the mirrors in order and returns the first one answering
// with a success status and a usable length. ok is false when none did.
func (r *MirrorResolver) ResolveSize(ctx context.Context, mirrors MirrorSet, relPath string) (index int, size uint64, ok bool) {
	for i := range mirrors {
		if r.cancel.Cancelled() {
			return -1, 0, false
		}
		result, err := r.Probe(ctx, mirrors.URL(i, relPath))
		if err != nil || !result.SizeKnown {
			continue
		}
		return i, result.Size, true
	}
	return -1, 0, false
}

func contentLength(resp *http.Response) (uint64, bool) {
	if header := strings.TrimSpace(resp.Header.Get("Content-Length")); header != "" {
		if n, err := strconv.ParseUint(header, 10, 64); err == nil {
			return n, true
		}
		return 0, false
	}
	if resp.ContentLength >= 0 {
		return uint64(resp.ContentLength), true
	}
	return 0, false
}
