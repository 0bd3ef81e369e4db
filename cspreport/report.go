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

// Package cspreport parses browser-submitted Content-Security-Policy
// violation reports.
//
// Browsers are untrusted input: malformed payloads are never an error, they
// simply parse to nothing. Known browser-extension and PDF-viewer false
// positives are filtered out the same way.
package cspreport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

var timeNow = time.Now

// Report is a normalized CSP violation report, augmented with the receive
// time and the reporting browser's user agent.
//
// The field set follows the CSP2 report serialization; the CSP3 variants of
// the line/column keys are folded in during parsing.
type Report struct {
	BlockedURI         string `json:"blocked-uri"`
	DocumentURI        string `json:"document-uri"`
	SourceFile         string `json:"source-file"`
	Disposition        string `json:"disposition,omitempty"`
	EffectiveDirective string `json:"effective-directive,omitempty"`
	OriginalPolicy     string `json:"original-policy,omitempty"`
	Referrer           string `json:"referrer,omitempty"`
	Sample             string `json:"script-sample,omitempty"`
	StatusCode         uint   `json:"status-code,omitempty"`
	ViolatedDirective  string `json:"violated-directive,omitempty"`
	LineNumber         uint   `json:"line-number,omitempty"`
	ColumnNumber       uint   `json:"column-number,omitempty"`

	// CurrentTime is the wall-clock receive time, HH:MM:SS.
	CurrentTime string `json:"currenttime"`
	// UserAgent is the reporting browser's User-Agent header, "none" when
	// the request carried none.
	UserAgent string `json:"useragent"`
}

// rawReport is the wire shape inside the csp-report wrapper. CSP2 uses
// line-number/column-number, CSP3 uses lineno/colno; both are accepted.
type rawReport struct {
	BlockedURI         string `json:"blocked-uri"`
	DocumentURI        string `json:"document-uri"`
	SourceFile         string `json:"source-file"`
	Disposition        string `json:"disposition"`
	EffectiveDirective string `json:"effective-directive"`
	OriginalPolicy     string `json:"original-policy"`
	Referrer           string `json:"referrer"`
	Sample             string `json:"script-sample"`
	StatusCode         uint   `json:"status-code"`
	ViolatedDirective  string `json:"violated-directive"`
	LineNo             uint   `json:"lineno"`
	LineNumber         uint   `json:"line-number"`
	ColNo              uint   `json:"colno"`
	ColumnNumber       uint   `json:"column-number"`
}

// Parse decodes a raw request body as a CSP2 violation report. It returns
// nil when there is nothing to report: the body is not valid JSON, the
// csp-report wrapper key is missing, or the report matches a known noise
// filter.
func Parse(body []byte, userAgent string) *Report {
	wrapper := struct {
		CSPReport json.RawMessage `json:"csp-report"`
	}{}
	if err := json.Unmarshal(body, &wrapper); err != nil || len(wrapper.CSPReport) == 0 {
		return nil
	}
	var raw rawReport
	if err := json.Unmarshal(wrapper.CSPReport, &raw); err != nil {
		return nil
	}
	if Noise(raw.DocumentURI, raw.BlockedURI, raw.SourceFile) {
		return nil
	}

	ln := raw.LineNo
	if ln == 0 {
		ln = raw.LineNumber
	}
	cn := raw.ColNo
	if cn == 0 {
		cn = raw.ColumnNumber
	}

	return augment(&Report{
		BlockedURI:         raw.BlockedURI,
		DocumentURI:        raw.DocumentURI,
		SourceFile:         raw.SourceFile,
		Disposition:        raw.Disposition,
		EffectiveDirective: raw.EffectiveDirective,
		OriginalPolicy:     raw.OriginalPolicy,
		Referrer:           raw.Referrer,
		Sample:             raw.Sample,
		StatusCode:         raw.StatusCode,
		ViolatedDirective:  raw.ViolatedDirective,
		LineNumber:         ln,
		ColumnNumber:       cn,
	}, userAgent)
}

// FromReportingAPI normalizes the body of a Reporting API csp-violation
// report, which uses camelCase keys. It returns nil for filtered noise, the
// same as Parse.
func FromReportingAPI(body map[string]interface{}, userAgent string) *Report {
	str := func(k string) string {
		s, _ := body[k].(string)
		return s
	}
	num := func(k string) uint {
		// encoding/json decodes all numbers to float64.
		f, ok := body[k].(float64)
		if !ok || f < 0 {
			return 0
		}
		return uint(f)
	}

	documentURI := str("documentURL")
	blockedURI := str("blockedURL")
	sourceFile := str("sourceFile")
	if Noise(documentURI, blockedURI, sourceFile) {
		return nil
	}

	return augment(&Report{
		BlockedURI:         blockedURI,
		DocumentURI:        documentURI,
		SourceFile:         sourceFile,
		Disposition:        str("disposition"),
		EffectiveDirective: str("effectiveDirective"),
		OriginalPolicy:     str("originalPolicy"),
		Referrer:           str("referrer"),
		Sample:             str("sample"),
		StatusCode:         num("statusCode"),
		// ViolatedDirective was dropped in CSP3 and is kept as a copy of
		// EffectiveDirective for consumers of the older shape.
		ViolatedDirective: str("effectiveDirective"),
		LineNumber:        num("lineNumber"),
		ColumnNumber:      num("columnNumber"),
	}, userAgent)
}

func augment(r *Report, userAgent string) *Report {
	if userAgent == "" {
		userAgent = "none"
	}
	r.CurrentTime = timeNow().Format("15:04:05")
	r.UserAgent = userAgent
	return r
}

// Noise reports whether a violation matches a known false-positive pattern:
// Firefox extension content scripts, about-page documents, and inline style
// violations raised by built-in PDF viewers.
func Noise(documentURI, blockedURI, sourceFile string) bool {
	if strings.HasPrefix(sourceFile, "moz-extension://") {
		return true
	}
	if documentURI == "about" {
		return true
	}
	if u, err := url.Parse(documentURI); err == nil &&
		strings.HasSuffix(strings.ToLower(u.Path), ".pdf") && blockedURI == "inline" {
		return true
	}
	return false
}

// Pretty returns the report as indented JSON with "/" left unescaped, one
// report per call, suitable for an append-only log.
func (r *Report) Pretty() []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		panic(fmt.Sprintf("cspreport: encoding a Report cannot fail: %v", err))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}
