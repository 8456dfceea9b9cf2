package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"mirrordl/internal/downloader/core"
	apperrors "mirrordl/internal/errors"
)

// Launcher configuration variants.
const (
	VariantDefault     = "default"
	VariantPredownload = "predownload"
)

const defaultFetchTimeout = 30 * time.Second

// ChooseFunc asks the user to pick one of options and returns the chosen value.
type ChooseFunc func(label string, options []string) (string, error)

// RemoteSource resolves a manifest through a launcher document:
// an optional catalog maps channel/region pairs to launcher URLs, the
// launcher lists CDNs plus the index location for each variant, and the
// index lists the files.
type RemoteSource struct {
	launcherURL string
	catalogURL  string
	channel     string
	variant     string
	choose      ChooseFunc
	client      core.HTTPClient
	userAgent   string
	timeout     time.Duration
	log         core.Logger
}

// RemoteOption customises a RemoteSource.
type RemoteOption func(*RemoteSource)

// WithClient sets the HTTP client used for every document fetch.
func WithClient(client core.HTTPClient) RemoteOption {
	return func(s *RemoteSource) {
		s.client = client
	}
}

// WithVariant preselects the launcher variant instead of asking.
func WithVariant(variant string) RemoteOption {
	return func(s *RemoteSource) {
		s.variant = strings.TrimSpace(variant)
	}
}

// WithChooser sets the callback used when a choice is ambiguous.
func WithChooser(choose ChooseFunc) RemoteOption {
	return func(s *RemoteSource) {
		s.choose = choose
	}
}

// WithCatalog resolves the launcher URL from a catalog document. channel
// ("live/os") preselects an entry; empty means ask.
func WithCatalog(catalogURL, channel string) RemoteOption {
	return func(s *RemoteSource) {
		s.catalogURL = strings.TrimSpace(catalogURL)
		s.channel = strings.TrimSpace(channel)
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) RemoteOption {
	return func(s *RemoteSource) {
		s.userAgent = userAgent
	}
}

// WithFetchTimeout bounds each document request.
func WithFetchTimeout(timeout time.Duration) RemoteOption {
	return func(s *RemoteSource) {
		s.timeout = timeout
	}
}

// WithLogger reports progress of the resolution steps.
func WithLogger(log core.Logger) RemoteOption {
	return func(s *RemoteSource) {
		s.log = log
	}
}

// NewRemoteSource builds a source for launcherURL. launcherURL may be empty when a catalog is configured.
func NewRemoteSource(launcherURL string, opts ...RemoteOption) *RemoteSource {
	s := &RemoteSource{
		launcherURL: strings.TrimSpace(launcherURL),
		client:      http.DefaultClient,
		timeout:     defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type launcherVariant struct {
	CDNList []struct {
		URL string `json:"url"`
	} `json:"cdnList"`
	Config *struct {
		BaseURL   string `json:"baseUrl"`
		IndexFile string `json:"indexFile"`
	} `json:"config"`
}

type indexDocument struct {
	Resource []record `json:"resource"`
}

// Load walks catalog, launcher and index in turn.
func (s *RemoteSource) Load(ctx context.Context) (*Manifest, error) {
	launcherURL := s.launcherURL
	if s.catalogURL != "" {
		resolved, err := s.resolveCatalog(ctx)
		if err != nil {
			return nil, err
		}
		launcherURL = resolved
	}
	if launcherURL == "" {
		return nil, invalidManifest("RemoteSource.Load", "no launcher URL configured", nil)
	}

	s.logf("Fetching download configuration...")
	var launcher map[string]json.RawMessage
	if err := s.fetchJSON(ctx, "RemoteSource.Launcher", launcherURL, &launcher); err != nil {
		return nil, err
	}

	variantName, err := s.pickVariant(launcher)
	if err != nil {
		return nil, err
	}

	var variant launcherVariant
	if err := json.Unmarshal(launcher[variantName], &variant); err != nil {
		return nil, invalidManifest("RemoteSource.Launcher", fmt.Sprintf("invalid %s config", variantName), err)
	}

	mirrors, indexURL, err := variant.resolve(variantName)
	if err != nil {
		return nil, err
	}

	s.logf("Fetching index file...")
	var index indexDocument
	if err := s.fetchJSON(ctx, "RemoteSource.Index", indexURL, &index); err != nil {
		return nil, err
	}

	entries, err := buildEntries("RemoteSource.Index", index.Resource)
	if err != nil {
		return nil, err
	}

	s.logf("Index file downloaded successfully: %d files, %d mirrors", len(entries), len(mirrors))
	return &Manifest{Entries: entries, Mirrors: mirrors, Variant: variantName}, nil
}

func (v launcherVariant) resolve(name string) (core.MirrorSet, string, error) {
	if v.Config == nil {
		return nil, "", invalidManifest("RemoteSource.Launcher", fmt.Sprintf("missing config in %s response", name), nil)
	}
	baseURL := strings.TrimLeft(strings.TrimSpace(v.Config.BaseURL), "/")
	if baseURL == "" {
		return nil, "", invalidManifest("RemoteSource.Launcher", "missing or invalid baseUrl", nil)
	}
	indexFile := strings.TrimLeft(strings.TrimSpace(v.Config.IndexFile), "/")
	if indexFile == "" {
		return nil, "", invalidManifest("RemoteSource.Launcher", "missing or invalid indexFile", nil)
	}

	var cdns []string
	for _, cdn := range v.CDNList {
		if url := strings.TrimRight(strings.TrimSpace(cdn.URL), "/"); url != "" {
			cdns = append(cdns, url)
		}
	}
	if len(cdns) == 0 {
		return nil, "", invalidManifest("RemoteSource.Launcher", "no valid CDN URLs found", nil)
	}

	bases := make([]string, 0, len(cdns))
	for _, cdn := range cdns {
		bases = append(bases, cdn+"/"+baseURL)
	}
	return core.NewMirrorSet(bases...), cdns[0] + "/" + indexFile, nil
}

// pickVariant uses the preselected variant, the only one present, or asks.
func (s *RemoteSource) pickVariant(launcher map[string]json.RawMessage) (string, error) {
	var available []string
	for _, name := range []string{VariantDefault, VariantPredownload} {
		if _, ok := launcher[name]; ok {
			available = append(available, name)
		}
	}

	switch {
	case len(available) == 0:
		return "", invalidManifest("RemoteSource.Launcher", "neither default nor predownload config found in response", nil)
	case s.variant != "":
		if _, ok := launcher[s.variant]; !ok {
			return "", invalidManifest("RemoteSource.Launcher", fmt.Sprintf("missing %s config in response", s.variant), nil).
				WithField("available", strings.Join(available, ","))
		}
		return s.variant, nil
	case len(available) == 1:
		s.logf("Using %s config", available[0])
		return available[0], nil
	case s.choose == nil:
		return "", invalidManifest("RemoteSource.Launcher", "several configs available and no variant selected", nil).
			WithField("available", strings.Join(available, ","))
	}

	chosen, err := s.choose("Choose config to use", available)
	if err != nil {
		return "", invalidManifest("RemoteSource.Launcher", "variant selection aborted", err)
	}
	return chosen, nil
}

// resolveCatalog maps "channel/region" keys of a two-level JSON object to launcher URLs.
func (s *RemoteSource) resolveCatalog(ctx context.Context) (string, error) {
	var catalog map[string]map[string]string
	if err := s.fetchJSON(ctx, "RemoteSource.Catalog", s.catalogURL, &catalog); err != nil {
		return "", err
	}

	urls := make(map[string]string)
	for channel, regions := range catalog {
		for region, url := range regions {
			if strings.TrimSpace(url) != "" {
				urls[channel+"/"+region] = url
			}
		}
	}
	if len(urls) == 0 {
		return "", invalidManifest("RemoteSource.Catalog", "catalog lists no versions", nil)
	}

	keys := make([]string, 0, len(urls))
	for key := range urls {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	key := s.channel
	switch {
	case key != "":
	case len(keys) == 1:
		key = keys[0]
	case s.choose == nil:
		return "", invalidManifest("RemoteSource.Catalog", "several versions available and no channel selected", nil).
			WithField("available", strings.Join(keys, ","))
	default:
		chosen, err := s.choose("Select version", keys)
		if err != nil {
			return "", invalidManifest("RemoteSource.Catalog", "version selection aborted", err)
		}
		key = chosen
	}

	url, ok := urls[key]
	if !ok {
		return "", invalidManifest("RemoteSource.Catalog", fmt.Sprintf("missing %s URL", key), nil).
			WithField("available", strings.Join(keys, ","))
	}
	return url, nil
}

func (s *RemoteSource) fetchJSON(ctx context.Context, operation, url string, out interface{}) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return invalidManifest(operation, "invalid document URL", err).WithField("url", url)
	}
	req.Header.Set("Accept-Encoding", "gzip, zstd")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return apperrors.NetworkError(apperrors.CodeMirrorUnavailable, "network error", err).
			WithModule("manifest").
			WithOperation(operation).
			WithField("url", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NetworkError(apperrors.CodeMirrorUnavailable, fmt.Sprintf("server error: HTTP %d", resp.StatusCode), nil).
			WithModule("manifest").
			WithOperation(operation).
			WithFields(apperrors.Metadata{"url": url, "status": resp.StatusCode})
	}

	data, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return invalidManifest(operation, "failed to decode document", err).WithField("url", url)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return invalidManifest(operation, "invalid JSON", err).WithField("url", url)
	}
	return nil
}

func (s *RemoteSource) logf(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Info(format, args...)
	}
}
