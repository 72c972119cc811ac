// Package registry is the central data/location registry client
// (SPEC_FULL.md §4.7 "DOMAIN Registry client"): dataset availability
// lookups, a TTL'd location→address cache, and dataset transfer between
// locations (spec.md §4.10). Client implements every collaborator
// interface the rest of the system needs from it — planner.LocationIndex,
// vm.RegistryClient, and checker.AddressBook — so one instance, backed by
// the `api`/`reg` HTTP surfaces, is all a node needs to wire up.
package registry

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/brane-run/brane/wir"
)

// Capabilities is one location's registered addresses, as returned by the
// central api's `GET /infra/capabilities/{loc}` (SPEC_FULL.md §4.7).
type Capabilities struct {
	RegistryAddress string `json:"registry_address"`
	CheckerAddress  string `json:"checker_address"`
	JobAddress      string `json:"job_address"`
}

type cacheEntry struct {
	caps      Capabilities
	fetchedAt time.Time
}

type datasetEntry struct {
	locations []wir.Location
	fetchedAt time.Time
}

// Client is the production registry collaborator. BaseURL is the central
// `api` service's address (`GET /data/info`, `GET /infra/registries`,
// `GET /infra/capabilities/{loc}`, SPEC_FULL.md §4.7).
type Client struct {
	HTTP    *http.Client
	BaseURL string
	TTL     time.Duration // default 6h (spec.md §5)

	mu       sync.RWMutex
	capCache map[wir.Location]cacheEntry
	dsCache  map[string]datasetEntry
}

// NewClient constructs a Client with the defaults spec.md §5 names: a 6h
// location-cache TTL and a 30s HTTP timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		HTTP:     &http.Client{Timeout: 30 * time.Second},
		BaseURL:  baseURL,
		TTL:      6 * time.Hour,
		capCache: map[wir.Location]cacheEntry{},
		dsCache:  map[string]datasetEntry{},
	}
}

// Locations implements planner.LocationIndex: every location dataset is
// currently available at, refreshed from `GET /data/info` once the cached
// entry's TTL has elapsed.
func (c *Client) Locations(ctx context.Context, dataset string) ([]wir.Location, error) {
	c.mu.RLock()
	entry, ok := c.dsCache[dataset]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.TTL {
		return entry.locations, nil
	}

	var ds wir.Dataset
	if err := c.getJSON(ctx, "/data/info", url.Values{"name": {dataset}}, &ds); err != nil {
		return nil, fmt.Errorf("registry: locations for %q: %w", dataset, err)
	}

	c.mu.Lock()
	c.dsCache[dataset] = datasetEntry{locations: ds.Locations, fetchedAt: time.Now()}
	c.mu.Unlock()
	return ds.Locations, nil
}

// CheckerAddress implements checker.AddressBook.
func (c *Client) CheckerAddress(ctx context.Context, domain wir.Location) (string, error) {
	caps, err := c.capabilities(ctx, domain)
	if err != nil {
		return "", err
	}
	return caps.CheckerAddress, nil
}

// JobAddress implements transport/job.AddressResolver: the dial address of
// loc's job service, for a drv session's job.Client to launch tasks against
// (SPEC_FULL.md §4.7, §6).
func (c *Client) JobAddress(ctx context.Context, loc wir.Location) (string, error) {
	caps, err := c.capabilities(ctx, loc)
	if err != nil {
		return "", err
	}
	return caps.JobAddress, nil
}

// Stage implements vm.RegistryClient: resolves v to loc, transferring from
// wherever it is currently available if it is not already there (spec.md
// §4.8, "resolve input datasets to the target location, inserting
// transfers specified by the planner").
func (c *Client) Stage(ctx context.Context, v wir.Value, loc wir.Location) (wir.Value, error) {
	if !v.IsShallow() {
		return v, nil
	}

	locs, err := c.Locations(ctx, v.Ref)
	if err != nil {
		return wir.Value{}, err
	}
	if hasLocation(locs, loc) {
		return v.Resolve(loc, nil), nil
	}
	if len(locs) == 0 {
		return wir.Value{}, fmt.Errorf("registry: %q is not available at any location", v.Ref)
	}

	// Deterministic source pick: first alphabetically, matching the
	// planner's own candidate tie-break (spec.md §4.7) so repeated staging
	// of the same reference always picks the same source.
	source := firstAlphabetically(locs)
	if err := c.transfer(ctx, v.Ref, source, loc); err != nil {
		return wir.Value{}, fmt.Errorf("registry: transfer %q %s->%s: %w", v.Ref, source, loc, err)
	}
	return v.Resolve(loc, nil), nil
}

// transfer streams a dataset's bytes from source to dest, archiving
// directory-layout datasets with tar+gzip first (spec.md §4.10,
// SPEC_FULL.md §4.10: "directories are archived... before streaming").
// Both endpoints are registries' own `reg` HTTP surfaces, looked up via
// capabilities.
func (c *Client) transfer(ctx context.Context, name string, source, dest wir.Location) error {
	srcCaps, err := c.capabilities(ctx, source)
	if err != nil {
		return fmt.Errorf("source capabilities: %w", err)
	}
	destCaps, err := c.capabilities(ctx, dest)
	if err != nil {
		return fmt.Errorf("dest capabilities: %w", err)
	}

	fetchURL := srcCaps.RegistryAddress + "/data/" + url.PathEscape(name) + "/stream"
	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(getReq)
	if err != nil {
		return fmt.Errorf("fetch from source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch from source: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("X-Brane-Layout") == "directory" {
		body, err = archiveDirectory(resp.Body)
		if err != nil {
			return fmt.Errorf("archive directory payload: %w", err)
		}
	}

	pushURL := destCaps.RegistryAddress + "/data/" + url.PathEscape(name) + "/stream"
	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, pushURL, body)
	if err != nil {
		return err
	}
	putReq.Header.Set("Content-Type", "application/octet-stream")
	putResp, err := c.HTTP.Do(putReq)
	if err != nil {
		return fmt.Errorf("push to dest: %w", err)
	}
	defer putResp.Body.Close()
	if putResp.StatusCode != http.StatusOK && putResp.StatusCode != http.StatusCreated {
		return fmt.Errorf("push to dest: status %d", putResp.StatusCode)
	}
	return nil
}

// archiveDirectory re-tars a directory-layout stream read as a flat byte
// stream of its already-serialized tar entries, applying gzip on the way
// out. In production the source `reg` surface sends a raw tar stream for a
// LayoutDirectory dataset; this wraps it in gzip for the wire, matching
// the chosen archive/tar + compress/gzip pairing (SPEC_FULL.md §4.10).
func archiveDirectory(r io.Reader) (io.Reader, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tr := tar.NewReader(r)
	tw := tar.NewWriter(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (c *Client) capabilities(ctx context.Context, loc wir.Location) (Capabilities, error) {
	c.mu.RLock()
	entry, ok := c.capCache[loc]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.TTL {
		return entry.caps, nil
	}

	var caps Capabilities
	path := "/infra/capabilities/" + url.PathEscape(string(loc))
	if err := c.getJSON(ctx, path, nil, &caps); err != nil {
		return Capabilities{}, fmt.Errorf("registry: capabilities for %q: %w", loc, err)
	}

	c.mu.Lock()
	c.capCache[loc] = cacheEntry{caps: caps, fetchedAt: time.Now()}
	c.mu.Unlock()
	return caps, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(data))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func hasLocation(locs []wir.Location, loc wir.Location) bool {
	for _, l := range locs {
		if l == loc {
			return true
		}
	}
	return false
}

func firstAlphabetically(locs []wir.Location) wir.Location {
	sorted := append([]wir.Location(nil), locs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[0]
}
