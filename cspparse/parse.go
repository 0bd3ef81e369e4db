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

// Package cspparse decodes serialized Content-Security-Policy header values
// back into a directive map. It is the read side of the csp package's
// Serialize and is deliberately lenient: unknown directives are kept as-is
// so a policy set by any server can be inspected.
package cspparse

import (
	"net/http"
	"strings"

	"github.com/google/go-csp/csp"
)

// Policy is a decoded header value.
type Policy struct {
	// Directives maps each directive to its source expressions, quoting
	// preserved, in serialization order.
	Directives map[csp.Directive][]string
	// ReportOnly is set by FromHeaders when the value came from the
	// report-only header.
	ReportOnly bool
	// UpgradeInsecureRequests and BlockAllMixedContent record the bare
	// keyword directives.
	UpgradeInsecureRequests bool
	BlockAllMixedContent    bool
	// ReportURI is the report-uri directive's first value, if any.
	ReportURI string
}

// Parse decodes a single header value. It never fails: tokens it does not
// understand are preserved under their directive name.
func Parse(value string) *Policy {
	p := &Policy{Directives: make(map[csp.Directive][]string)}
	for _, part := range strings.Split(value, ";") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		name := strings.ToLower(fields[0])
		switch name {
		case "upgrade-insecure-requests":
			p.UpgradeInsecureRequests = true
		case "block-all-mixed-content":
			p.BlockAllMixedContent = true
		case "report-uri":
			if len(fields) > 1 {
				p.ReportURI = fields[1]
			}
		default:
			p.Directives[csp.Directive(name)] = fields[1:]
		}
	}
	return p
}

// FromHeaders decodes the CSP policy carried by h, preferring the enforcing
// header over the report-only one. It returns nil when neither is present.
func FromHeaders(h http.Header) *Policy {
	if v := h.Get(csp.HeaderKey); v != "" {
		return Parse(v)
	}
	if v := h.Get(csp.ReportOnlyHeaderKey); v != "" {
		p := Parse(v)
		p.ReportOnly = true
		return p
	}
	return nil
}
