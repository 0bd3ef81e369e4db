// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package csp builds Content-Security-Policy header values.
//
// A Policy accumulates per-directive source lists and applies the CSP
// merging rules as sources are added: 'none' is exclusive with every other
// source, duplicate sources are dropped, and the first write to an
// unconfigured fetch directive seeds it with a snapshot of default-src. At
// serialization time nonce and hash sources suppress 'unsafe-inline' for
// script-src and style-src, and upgrade-insecure-requests takes precedence
// over block-all-mixed-content.
//
// A Policy is meant to be request-scoped: build one per response, serialize
// it, and throw it away. It is not safe for concurrent mutation.
package csp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Header names a Policy serializes into.
const (
	HeaderKey           = "Content-Security-Policy"
	ReportOnlyHeaderKey = "Content-Security-Policy-Report-Only"
)

// Errors reported by Policy operations. All are returned wrapped; test with
// errors.Is.
var (
	// ErrInvalidDirective is returned when a directive outside the closed
	// directive set is passed to any directive-taking operation.
	ErrInvalidDirective = errors.New("csp: invalid directive")
	// ErrInvalidAlgorithm is returned when an unsupported hash algorithm is
	// explicitly requested.
	ErrInvalidAlgorithm = errors.New("csp: invalid hash algorithm")
	// ErrMissingReportURI is returned when a report-only header is requested
	// from a Policy that has no report URI configured: violations would be
	// silently dropped.
	ErrMissingReportURI = errors.New("csp: report-only policy without report-uri")
)

var randReader = rand.Reader

// nonceSize is the size of generated nonces in bytes before hex encoding.
const nonceSize = 8

func generateNonce() string {
	b := make([]byte, nonceSize)
	if _, err := io.ReadFull(randReader, b); err != nil {
		panic(fmt.Errorf("csp: failed to generate entropy using crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}

// GenerateNonce returns a fresh nonce value from a cryptographically secure
// random source. Most callers should use Policy.Nonce instead; this is for
// layers that hand one nonce to several policies.
func GenerateNonce() string { return generateNonce() }

// Config holds construction parameters for a Policy. The zero value is the
// most restrictive configuration.
type Config struct {
	// BaseURI seeds the base-uri directive. Empty means 'none'.
	BaseURI string
	// DefaultSource seeds default-src, form-action and frame-ancestors.
	// Empty means 'self'.
	DefaultSource string
	// AllowLessSecure, when set, leaves mixed HTTP/HTTPS content alone.
	// When unset the policy emits block-all-mixed-content (or
	// upgrade-insecure-requests if that was requested).
	AllowLessSecure bool
}

// Policy is a mutable Content-Security-Policy under construction.
type Policy struct {
	sources map[Directive][]string

	nonce                   string
	reportURI               string
	blockAllMixedContent    bool
	upgradeInsecureRequests bool
}

// New creates a Policy seeded per cfg. The navigation directives form-action
// and frame-ancestors are seeded directly rather than left to the fallback
// mechanism: browsers do not fall back to default-src for them, so an
// unconfigured navigation directive would silently allow everything.
func New(cfg Config) *Policy {
	base := cfg.BaseURI
	if base == "" {
		base = None
	}
	def := cfg.DefaultSource
	if def == "" {
		def = Self
	}
	return &Policy{
		sources: map[Directive][]string{
			BaseURI:        {base},
			DefaultSrc:     {def},
			FormAction:     {def},
			FrameAncestors: {def},
		},
		blockAllMixedContent: !cfg.AllowLessSecure,
	}
}

func validDirectives(ds []Directive) error {
	for _, d := range ds {
		if !d.IsValid() {
			return fmt.Errorf("%w: %q", ErrInvalidDirective, d)
		}
	}
	return nil
}

// filterSources drops empty values and duplicates, keeping the first
// occurrence of each source.
func filterSources(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// mergeSources applies the sources to list in order, honoring the 'none'
// exclusivity rule: adding 'none' clears everything else, and adding any
// source to a list holding only 'none' replaces it.
func mergeSources(list []string, sources []string) []string {
	for _, s := range sources {
		if s == None || (len(list) > 0 && list[0] == None) {
			list = []string{s}
			continue
		}
		if !contains(list, s) {
			list = append(list, s)
		}
	}
	return list
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// seed returns the initial source list for a directive that has never been
// written to, following the fallback chain. frame-src resolves through
// child-src: if child-src is configured its sources are used, otherwise the
// chain continues to default-src. The returned slice is a snapshot, never an
// alias of another directive's list.
func (p *Policy) seed(d Directive) []string {
	f, ok := fallback[d]
	if !ok {
		return nil
	}
	if list, ok := p.sources[f]; ok {
		return append([]string(nil), list...)
	}
	return p.seed(f)
}

// AddSource adds sources to a single directive. See AddSources.
func (p *Policy) AddSource(d Directive, sources ...string) error {
	return p.AddSources([]Directive{d}, sources...)
}

// AddSources adds the given sources to each directive in order
// (directive-major, source-minor). A directive written to for the first time
// is seeded with its fallback sources first; the seed is a one-time snapshot,
// later changes to default-src do not propagate. Empty and duplicate source
// values are ignored.
func (p *Policy) AddSources(ds []Directive, sources ...string) error {
	if err := validDirectives(ds); err != nil {
		return err
	}
	srcs := filterSources(sources)
	for _, d := range ds {
		list, ok := p.sources[d]
		if !ok {
			list = p.seed(d)
		}
		p.sources[d] = mergeSources(list, srcs)
	}
	return nil
}

// SetSource replaces a single directive's sources. See SetSources.
func (p *Policy) SetSource(d Directive, sources ...string) error {
	return p.SetSources([]Directive{d}, sources...)
}

// SetSources replaces each directive's source list with exactly the given
// sources. Unlike AddSources a first write does not seed from the fallback
// chain: the caller gets explicit sources only.
func (p *Policy) SetSources(ds []Directive, sources ...string) error {
	if err := validDirectives(ds); err != nil {
		return err
	}
	srcs := filterSources(sources)
	for _, d := range ds {
		p.sources[d] = mergeSources(nil, srcs)
	}
	return nil
}

// RemoveSource removes sources from a single directive. See RemoveSources.
func (p *Policy) RemoveSource(d Directive, sources ...string) error {
	return p.RemoveSources([]Directive{d}, sources...)
}

// RemoveSources removes matching sources from each directive. Sources not
// present and directives never written to are ignored; only an unknown
// directive name is an error.
func (p *Policy) RemoveSources(ds []Directive, sources ...string) error {
	if err := validDirectives(ds); err != nil {
		return err
	}
	for _, d := range ds {
		list, ok := p.sources[d]
		if !ok {
			continue
		}
		var kept []string
		for _, s := range list {
			if !contains(sources, s) {
				kept = append(kept, s)
			}
		}
		p.sources[d] = kept
	}
	return nil
}

// ClearSources empties each directive's source list while keeping the
// directive configured: it renders as absent and a later AddSources call will
// not re-seed it from the fallback chain. Callers that want an explicit
// 'none' should follow up with AddSource(d, None).
func (p *Policy) ClearSources(ds ...Directive) error {
	if err := validDirectives(ds); err != nil {
		return err
	}
	for _, d := range ds {
		p.sources[d] = nil
	}
	return nil
}

// RemoveDirective drops each directive entirely, as if it had never been
// written to. The fallback seed applies again on the next AddSources call.
func (p *Policy) RemoveDirective(ds ...Directive) error {
	if err := validDirectives(ds); err != nil {
		return err
	}
	for _, d := range ds {
		delete(p.sources, d)
	}
	return nil
}

// Nonce returns the policy's nonce, generating one on first use. The value
// is shared across the whole policy so a script tag's nonce attribute
// matches whichever directive it is added to.
func (p *Policy) Nonce() string {
	if p.nonce == "" {
		p.nonce = generateNonce()
	}
	return p.nonce
}

// SetNonce overwrites the policy's nonce with a caller-provided value.
func (p *Policy) SetNonce(nonce string) *Policy {
	p.nonce = nonce
	return p
}

// AddNonce adds a 'nonce-<value>' source to the directive, generating the
// policy nonce if needed. With strictDynamic the 'strict-dynamic' token is
// added as well.
func (p *Policy) AddNonce(d Directive, strictDynamic bool) error {
	sources := []string{"nonce-" + p.Nonce()}
	if strictDynamic {
		sources = append(sources, StrictDynamic)
	}
	return p.AddSource(d, sources...)
}

// BlockAllMixedContent controls emission of the block-all-mixed-content
// keyword. It is ignored while upgrade-insecure-requests is set, which
// subsumes it.
func (p *Policy) BlockAllMixedContent(block bool) *Policy {
	p.blockAllMixedContent = block
	return p
}

// UpgradeInsecureRequests controls emission of the upgrade-insecure-requests
// keyword.
func (p *Policy) UpgradeInsecureRequests(upgrade bool) *Policy {
	p.upgradeInsecureRequests = upgrade
	return p
}

// ReportURI sets the violation report endpoint. Empty clears it. The
// report-uri directive is only ever emitted on the report-only header; it is
// deprecated on the enforcing one.
func (p *Policy) ReportURI(uri string) *Policy {
	p.reportURI = uri
	return p
}

// Serialize renders the header value. It never mutates the policy, so
// calling it repeatedly yields identical strings. An empty return value
// means no header should be sent.
func (p *Policy) Serialize(reportOnly bool) string {
	ds := make([]Directive, 0, len(p.sources))
	for d := range p.sources {
		ds = append(ds, d)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

	var parts []string
	for _, d := range ds {
		list := p.sources[d]
		if (d == ScriptSrc || d == StyleSrc) && hasNonceOrHash(list) {
			// Browsers ignore 'unsafe-inline' once a nonce or hash source is
			// present; emitting it anyway would re-open inline execution on
			// CSP-Level-1-only browsers.
			list = without(list, UnsafeInline)
		}
		if len(list) == 0 {
			continue
		}
		enc := make([]string, len(list))
		for i, s := range list {
			enc[i] = encodeSource(s)
		}
		parts = append(parts, string(d)+" "+strings.Join(enc, " "))
	}

	if p.upgradeInsecureRequests {
		parts = append(parts, "upgrade-insecure-requests")
	} else if p.blockAllMixedContent {
		parts = append(parts, "block-all-mixed-content")
	}

	if reportOnly && p.reportURI != "" {
		parts = append(parts, "report-uri "+p.reportURI)
	}

	return strings.Join(parts, "; ")
}

func hasNonceOrHash(list []string) bool {
	for _, s := range list {
		if isNonceOrHash(s) {
			return true
		}
	}
	return false
}

func without(list []string, drop string) []string {
	var kept []string
	for _, s := range list {
		if s != drop {
			kept = append(kept, s)
		}
	}
	return kept
}

// EnforcementHeader returns the enforcing header name and value. ok is false
// when the policy serializes to nothing and no header should be sent.
func (p *Policy) EnforcementHeader() (name, value string, ok bool) {
	v := p.Serialize(false)
	if v == "" {
		return "", "", false
	}
	return HeaderKey, v, true
}

// ReportOnlyHeader returns the report-only header name and value. It fails
// with ErrMissingReportURI if no report URI is configured: a report-only
// policy without a collection endpoint drops every violation on the floor.
func (p *Policy) ReportOnlyHeader() (name, value string, err error) {
	if p.reportURI == "" {
		return "", "", ErrMissingReportURI
	}
	return ReportOnlyHeaderKey, p.Serialize(true), nil
}
