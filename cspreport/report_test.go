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

package cspreport

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMain(m *testing.M) {
	timeNow = func() time.Time {
		return time.Date(2024, 5, 13, 10, 15, 30, 0, time.UTC)
	}
	os.Exit(m.Run())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		userAgent string
		want      *Report
	}{
		{
			name: "basic report",
			body: `{"csp-report": {
				"document-uri": "https://example.com/page",
				"blocked-uri": "https://evil.example.net/x.js",
				"violated-directive": "script-src 'self'",
				"source-file": "https://example.com/app.js",
				"line-number": 10,
				"column-number": 4
			}}`,
			userAgent: "TestBrowser/1.0",
			want: &Report{
				DocumentURI:       "https://example.com/page",
				BlockedURI:        "https://evil.example.net/x.js",
				ViolatedDirective: "script-src 'self'",
				SourceFile:        "https://example.com/app.js",
				LineNumber:        10,
				ColumnNumber:      4,
				CurrentTime:       "10:15:30",
				UserAgent:         "TestBrowser/1.0",
			},
		},
		{
			name: "csp3 lineno and colno win over csp2 keys",
			body: `{"csp-report": {
				"document-uri": "https://example.com/",
				"blocked-uri": "inline",
				"lineno": 7,
				"colno": 2,
				"line-number": 99,
				"column-number": 99
			}}`,
			want: &Report{
				DocumentURI:  "https://example.com/",
				BlockedURI:   "inline",
				LineNumber:   7,
				ColumnNumber: 2,
				CurrentTime:  "10:15:30",
				UserAgent:    "none",
			},
		},
		{
			name: "missing fields normalize to empty",
			body: `{"csp-report": {"effective-directive": "img-src"}}`,
			want: &Report{
				EffectiveDirective: "img-src",
				CurrentTime:        "10:15:30",
				UserAgent:          "none",
			},
		},
		{
			name: "not json",
			body: `this is not a report`,
			want: nil,
		},
		{
			name: "valid json without csp-report key",
			body: `{"some-other-report": {}}`,
			want: nil,
		},
		{
			name: "firefox extension noise",
			body: `{"csp-report": {
				"document-uri": "https://example.com/",
				"blocked-uri": "https://example.com/x.js",
				"source-file": "moz-extension://abc/x.js"
			}}`,
			want: nil,
		},
		{
			name: "about document noise",
			body: `{"csp-report": {"document-uri": "about", "blocked-uri": "inline"}}`,
			want: nil,
		},
		{
			name: "pdf viewer noise",
			body: `{"csp-report": {
				"document-uri": "https://example.com/docs/Manual.PDF",
				"blocked-uri": "inline"
			}}`,
			want: nil,
		},
		{
			name: "pdf document with non-inline violation is kept",
			body: `{"csp-report": {
				"document-uri": "https://example.com/docs/manual.pdf",
				"blocked-uri": "https://evil.example.net/x.js"
			}}`,
			want: &Report{
				DocumentURI: "https://example.com/docs/manual.pdf",
				BlockedURI:  "https://evil.example.net/x.js",
				CurrentTime: "10:15:30",
				UserAgent:   "none",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse([]byte(tt.body), tt.userAgent)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromReportingAPI(t *testing.T) {
	body := map[string]interface{}{
		"documentURL":        "https://example.com/page",
		"blockedURL":         "https://evil.example.net/x.js",
		"effectiveDirective": "script-src-elem",
		"statusCode":         float64(200),
		"lineNumber":         float64(3),
	}
	got := FromReportingAPI(body, "TestBrowser/1.0")
	want := &Report{
		DocumentURI:        "https://example.com/page",
		BlockedURI:         "https://evil.example.net/x.js",
		EffectiveDirective: "script-src-elem",
		ViolatedDirective:  "script-src-elem",
		StatusCode:         200,
		LineNumber:         3,
		CurrentTime:        "10:15:30",
		UserAgent:          "TestBrowser/1.0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromReportingAPI() mismatch (-want +got):\n%s", diff)
	}

	noise := map[string]interface{}{
		"documentURL": "https://example.com/x.pdf",
		"blockedURL":  "inline",
	}
	if got := FromReportingAPI(noise, ""); got != nil {
		t.Errorf("FromReportingAPI() on pdf noise: got %+v, want nil", got)
	}
}

func TestPretty(t *testing.T) {
	r := Parse([]byte(`{"csp-report": {
		"document-uri": "https://example.com/a/b",
		"blocked-uri": "https://evil.example.net/x.js"
	}}`), "")
	if r == nil {
		t.Fatal("Parse(): got nil, want a report")
	}
	out := string(r.Pretty())
	if strings.Contains(out, `\/`) {
		t.Errorf("Pretty() escaped slashes:\n%s", out)
	}
	if !strings.Contains(out, "\n  \"blocked-uri\": \"https://evil.example.net/x.js\"") {
		t.Errorf("Pretty() missing indented blocked-uri:\n%s", out)
	}
	if strings.HasSuffix(out, "\n") {
		t.Error("Pretty() ends with a newline; callers append their own")
	}
}
