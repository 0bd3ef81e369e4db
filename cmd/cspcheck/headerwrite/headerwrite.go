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

// Package headerwrite implements an analyzer that flags hand-written
// Content-Security-Policy header writes.
package headerwrite

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer flags calls that set a CSP header from a string, bypassing the
// policy builder.
var Analyzer = &analysis.Analyzer{
	Name: "cspheaderwrite",
	Doc:  "Checks for hand-written Content-Security-Policy header writes",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, f := range pass.Files {
		ast.Inspect(f, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			sel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if name := sel.Sel.Name; name != "Set" && name != "Add" {
				return true
			}
			tv, ok := pass.TypesInfo.Types[sel.X]
			if !ok || !isHTTPHeader(tv.Type) {
				return true
			}
			if len(call.Args) == 0 {
				return true
			}
			header, ok := stringLit(call.Args[0])
			if !ok {
				return true
			}
			if strings.EqualFold(header, "Content-Security-Policy") ||
				strings.EqualFold(header, "Content-Security-Policy-Report-Only") {
				pass.Report(analysis.Diagnostic{
					Pos:     call.Pos(),
					Message: "hand-written CSP header write; build the policy with github.com/google/go-csp/csp and set it via csphttp",
				})
			}
			return true
		})
	}
	return nil, nil
}

func isHTTPHeader(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Name() == "Header" && obj.Pkg() != nil && obj.Pkg().Path() == "net/http"
}

func stringLit(e ast.Expr) (string, bool) {
	lit, ok := e.(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return "", false
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return "", false
	}
	return s, true
}
