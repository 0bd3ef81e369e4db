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

// Package csphttp attaches Content-Security-Policy headers to net/http
// responses.
//
// Policies are built per request: the Interceptor generates one nonce,
// passes it to the policy factories, sets the resulting headers and makes
// the nonce available to handlers through the request context so templates
// can stamp it onto script and style tags.
package csphttp

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/go-csp/csp"
)

type ctxKey struct{}

// Nonce retrieves the per-request CSP nonce from the given context. It
// returns an error if the request did not pass through an Interceptor.
func Nonce(ctx context.Context) (string, error) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return "", errors.New("csphttp: no nonce in context")
	}
	return v.(string), nil
}

// PolicyFunc builds a request's policy. The nonce is the per-request value
// shared between the enforcing and report-only policies; factories that use
// nonce sources must install it with SetNonce before calling AddNonce.
type PolicyFunc func(nonce string) *csp.Policy

// Interceptor is net/http middleware applying CSP policies to every
// response.
type Interceptor struct {
	// Enforce builds the policy for the Content-Security-Policy header.
	Enforce PolicyFunc
	// ReportOnly builds the policy for the
	// Content-Security-Policy-Report-Only header. The built policy must
	// carry a report URI; without one the response fails with a 500 rather
	// than silently dropping every violation.
	ReportOnly PolicyFunc
}

// Default returns an Interceptor enforcing a strict nonce-based policy:
// scripts only run when stamped with the request nonce, objects are blocked
// and base-uri is locked down. reportURI may be empty.
func Default(reportURI string) Interceptor {
	return Interceptor{
		Enforce: func(nonce string) *csp.Policy {
			p := csp.New(csp.Config{})
			p.SetNonce(nonce)
			p.ReportURI(reportURI)
			if err := p.SetSource(csp.ObjectSrc, csp.None); err != nil {
				panic(err)
			}
			if err := p.AddNonce(csp.ScriptSrc, true); err != nil {
				panic(err)
			}
			return p
		},
	}
}

// Wrap returns a handler that sets the CSP headers and then invokes next
// with the nonce stored in the request context.
func (it Interceptor) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := csp.GenerateNonce()

		if it.Enforce != nil {
			p := it.Enforce(nonce)
			if name, value, ok := p.EnforcementHeader(); ok {
				w.Header().Set(name, value)
			}
		}
		if it.ReportOnly != nil {
			p := it.ReportOnly(nonce)
			name, value, err := p.ReportOnlyHeader()
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			w.Header().Set(name, value)
		}

		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, nonce))
		next.ServeHTTP(w, r)
	})
}
