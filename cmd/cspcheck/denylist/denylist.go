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

// Package denylist implements a config-driven analyzer that reports usages
// of denied functions and imports, with per-package exemptions.
package denylist

import (
	"errors"
	"flag"
	"fmt"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"

	"github.com/google/go-csp/cmd/cspcheck/config"
)

// NewAnalyzer returns an analyzer that checks for usage of denied APIs.
func NewAnalyzer() *analysis.Analyzer {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.String("configs", "", "Config files with denied APIs separated by a comma")

	return &analysis.Analyzer{
		Name:  "denylist",
		Doc:   "Checks for usage of denied APIs",
		Run:   checkDeniedAPIs,
		Flags: *fs,
	}
}

func checkDeniedAPIs(pass *analysis.Pass) (interface{}, error) {
	cfgFiles := pass.Analyzer.Flags.Lookup("configs").Value.String()
	if cfgFiles == "" {
		return nil, errors.New("missing config files")
	}

	cfg, err := config.Read(strings.Split(cfgFiles, ","))
	if err != nil {
		return nil, err
	}

	if err := checkDeniedImports(pass, apiMap(cfg.Imports)); err != nil {
		return nil, err
	}
	if err := checkDeniedFunctions(pass, apiMap(cfg.Functions)); err != nil {
		return nil, err
	}
	return nil, nil
}

func checkDeniedImports(pass *analysis.Pass, denied map[string][]config.DeniedAPI) error {
	for _, f := range pass.Files {
		for _, i := range f.Imports {
			importName := strings.Trim(i.Path.Value, `"`)
			if err := reportIfDenied(pass, importName, denied, i.Pos()); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkDeniedFunctions(pass *analysis.Pass, denied map[string][]config.DeniedAPI) error {
	for id, obj := range pass.TypesInfo.Uses {
		fn, ok := obj.(*types.Func)
		if !ok {
			continue
		}
		fnName := fmt.Sprintf("%s.%s", fn.Pkg().Path(), fn.Name())
		if err := reportIfDenied(pass, fnName, denied, id.Pos()); err != nil {
			return err
		}
	}
	return nil
}

func reportIfDenied(pass *analysis.Pass, apiName string, denied map[string][]config.DeniedAPI, pos token.Pos) error {
	entries, isDenied := denied[apiName]
	if !isDenied {
		return nil
	}
	allowed, err := pkgAllowed(pass.Pkg, entries)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	for _, e := range entries {
		pass.Report(analysis.Diagnostic{
			Pos:     pos,
			Message: fmt.Sprintf("Denied API found %q. Additional info: %s", apiName, e.Msg),
		})
	}
	return nil
}

// pkgAllowed checks whether the package is exempted from reporting usages
// of the denied API.
func pkgAllowed(pkg *types.Package, entries []config.DeniedAPI) (bool, error) {
	for _, e := range entries {
		for _, x := range e.Exemptions {
			match, err := filepath.Match(x.AllowedPkg, pkg.Path())
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		}
	}
	return false, nil
}

// apiMap builds a mapping of fully qualified API name to all its deny
// entries.
func apiMap(apis []config.DeniedAPI) map[string][]config.DeniedAPI {
	m := make(map[string][]config.DeniedAPI)
	for _, api := range apis {
		m[api.Name] = append(m[api.Name], api)
	}
	return m
}
