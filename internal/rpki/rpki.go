// Package rpki validates (ASN, prefix) pairs against a VRPs (Validated
// ROA Payloads) snapshot.
package rpki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sidn/pathtraced/internal/logging"
)

var log = logging.Named("path_traceroute.rpki")

// DefaultURL is the VRPs dataset endpoint used when none is configured.
const DefaultURL = "https://console.rpki-client.org/vrps.json"

// ExpireAfter is how stale a cached VRPs file may be before it's
// re-downloaded.
const ExpireAfter = 7 * 24 * time.Hour

// roa is one Validated ROA Payload entry, as the upstream dataset shapes
// it: ASN and prefix both travel as strings.
type roa struct {
	ASN    string `json:"asn"`
	Prefix string `json:"prefix"`
}

type vrpsFile struct {
	Metadata struct {
		Buildtime string `json:"buildtime"`
	} `json:"metadata"`
	ROAs []roa `json:"roas"`
}

// Validator answers roa_valid(asn, prefix) queries against an
// in-memory VRPs snapshot.
//
// Open question (spec.md §9): the source both treats ROA presence as
// binary and keeps the entire VRPs list in memory, checking membership
// by linear scan. A production system with a large VRPs set would want
// a longest-prefix-match index; this preserves the literal
// "(asn, prefix) in list" semantics instead of guessing at that intent.
type Validator struct {
	path string
	url  string

	roas []roa
}

// NewValidator builds a Validator backed by a local cache file at path,
// downloading from url if the file is missing or stale.
func NewValidator(ctx context.Context, path, url string) (*Validator, error) {
	if path == "" {
		path = "vrps.json"
	}
	if url == "" {
		url = DefaultURL
	}
	v := &Validator{path: path, url: url}
	if err := v.load(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) load(ctx context.Context) error {
	if data, ok := v.readIfFresh(); ok {
		return v.parse(data)
	}

	log.Info().Str("url", v.url).Msg("downloading VRPs dataset")
	data, err := v.download(ctx)
	if err != nil {
		if stale, ok := v.readStale(); ok {
			log.Warn().Err(err).Msg("VRPs download failed, continuing with stale dataset")
			return v.parse(stale)
		}
		return err
	}
	if err := v.persist(data); err != nil {
		log.Warn().Err(err).Msg("failed to persist VRPs dataset, continuing with in-memory copy")
	}
	return v.parse(data)
}

// Refresh re-checks the cached file's freshness, re-downloading if
// stale. A download failure on refresh is non-fatal: the validator
// keeps serving its existing (stale) dataset.
func (v *Validator) Refresh(ctx context.Context) {
	if data, ok := v.readIfFresh(); ok {
		_ = v.parse(data)
		return
	}
	data, err := v.download(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("VRPs refresh failed, continuing with stale dataset")
		return
	}
	if err := v.persist(data); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed VRPs dataset")
	}
	if err := v.parse(data); err != nil {
		log.Warn().Err(err).Msg("failed to parse refreshed VRPs dataset")
	}
}

func (v *Validator) readIfFresh() ([]byte, bool) {
	info, err := os.Stat(v.path)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(v.path)
	if err != nil {
		return nil, false
	}
	var f vrpsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, false
	}
	built, err := time.Parse(time.RFC3339, f.Metadata.Buildtime)
	if err != nil {
		return nil, false
	}
	if time.Since(built) > ExpireAfter {
		return nil, false
	}
	_ = info
	return data, true
}

func (v *Validator) readStale() ([]byte, bool) {
	data, err := os.ReadFile(v.path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (v *Validator) download(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// persist writes data to v.path atomically: write to a temp file in the
// same directory, then rename over the destination.
func (v *Validator) persist(data []byte) error {
	dir := filepath.Dir(v.path)
	tmp, err := os.CreateTemp(dir, ".vrps-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, v.path)
}

func (v *Validator) parse(data []byte) error {
	var f vrpsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	v.roas = f.ROAs
	return nil
}

// Valid reports whether (asn, prefix) is covered by the loaded VRPs
// dataset. False if either argument is empty or "*".
func (v *Validator) Valid(asn, prefix string) bool {
	if asn == "" || asn == "*" || prefix == "" || prefix == "*" {
		return false
	}
	for _, r := range v.roas {
		if r.ASN == asn && r.Prefix == prefix {
			return true
		}
	}
	return false
}
