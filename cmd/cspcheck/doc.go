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

// Command cspcheck keeps Content-Security-Policy construction funneled
// through this module.
//
// It is a go/analysis multichecker with two analyzers:
//
// The cspheaderwrite analyzer flags hand-written CSP header assignments,
// i.e. calls to net/http Header.Set or Header.Add with a
// Content-Security-Policy or Content-Security-Policy-Report-Only name.
// String-built policies are where the subtle CSP mistakes live (unquoted
// keywords, lost 'none' exclusivity, stale nonces); the csp and csphttp
// packages exist so that no one has to write those strings by hand.
//
// The denylist analyzer checks fully qualified function and import names
// against JSON config files passed via the -configs flag, with per-package
// exemptions. Example config:
//
//	{
//		"functions": [
//			{
//				"name": "legacy/web.SetCSP",
//				"msg": "use github.com/google/go-csp/csphttp instead",
//				"exemptions": [
//					{
//						"justification": "migration in progress, tracked in issue 421",
//						"allowedPkg": "legacy/web/..."
//					}
//				]
//			}
//		],
//		"imports": [
//			{
//				"name": "legacy/web/csputil",
//				"msg": "superseded by github.com/google/go-csp/csp"
//			}
//		]
//	}
//
// Usage:
//
//	cspcheck -configs=deny.json ./...
package main
