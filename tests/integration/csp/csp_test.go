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

package csp_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-csp/csp"
	"github.com/google/go-csp/csphttp"
	"github.com/google/go-csp/cspparse"
	"github.com/google/go-csp/htmlinject"
	"github.com/google/safehtml/template/uncheckedconversions"
)

// TestPolicyFlow drives a full request: the middleware builds a nonce-based
// policy, the handler renders a template stamped with the same nonce, and
// the emitted header parses back to the policy that was built.
func TestPolicyFlow(t *testing.T) {
	tpl, err := htmlinject.LoadTrustedTemplate(nil, htmlinject.LoadConfig{},
		uncheckedconversions.TrustedTemplateFromStringKnownToSatisfyTypeContract(
			`<script>initApp();</script>`))
	if err != nil {
		t.Fatalf("LoadTrustedTemplate: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce, err := csphttp.Nonce(r.Context())
		if err != nil {
			t.Errorf("Nonce(ctx): %v", err)
		}
		if err := htmlinject.Execute(w, tpl, "", nonce, nil); err != nil {
			t.Errorf("Execute: %v", err)
		}
	})

	srv := httptest.NewServer(csphttp.Default("/api/cspreport").Wrap(handler))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	policy := cspparse.FromHeaders(resp.Header)
	if policy == nil {
		t.Fatal("no CSP header on response")
	}
	if policy.ReportOnly {
		t.Error("policy unexpectedly report-only")
	}

	scriptSrc := policy.Directives[csp.ScriptSrc]
	var nonce string
	for _, src := range scriptSrc {
		if strings.HasPrefix(src, "'nonce-") {
			nonce = strings.TrimSuffix(strings.TrimPrefix(src, "'nonce-"), "'")
		}
	}
	if nonce == "" {
		t.Fatalf("script-src %v carries no nonce", scriptSrc)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	want := `<script nonce="` + nonce + `">initApp();</script>`
	if diff := cmp.Diff(want, string(body)); diff != "" {
		t.Errorf("rendered body (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"'none'"}, policy.Directives[csp.ObjectSrc]); diff != "" {
		t.Errorf("object-src (-want +got):\n%s", diff)
	}
	if !policy.BlockAllMixedContent {
		t.Error("policy lost block-all-mixed-content")
	}
}
