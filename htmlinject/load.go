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

package htmlinject

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/google/safehtml/template"
	"github.com/google/safehtml/template/uncheckedconversions"
)

// LoadConfig selects which rewrites to apply while loading templates. The
// zero value applies all of them.
type LoadConfig struct {
	// DisableCSPNonces stops nonce attributes from being added.
	DisableCSPNonces bool
}

func (c LoadConfig) configs() []Config {
	var cfgs []Config
	if !c.DisableCSPNonces {
		cfgs = append(cfgs, CSPNoncesDefault)
	}
	return cfgs
}

// placeholderFuncs lets rewritten templates parse. Executing without binding
// the real nonce is a programming error, not a policy bypass to tolerate.
var placeholderFuncs = map[string]interface{}{
	"CSPNonce": func() string {
		panic("htmlinject: CSPNonce called without a bound nonce; execute via htmlinject.Execute")
	},
}

// LoadTrustedTemplate rewrites src per lcfg and parses the result into tpl.
// A nil tpl starts a new template.
func LoadTrustedTemplate(tpl *template.Template, lcfg LoadConfig, src template.TrustedTemplate) (*template.Template, error) {
	rewritten, err := Transform(strings.NewReader(src.String()), lcfg.configs()...)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		tpl = template.New("htmlinject")
	}
	// The rewrite only adds attributes and nodes from compile-time
	// constants to a template that was already trusted.
	return tpl.Funcs(placeholderFuncs).ParseFromTrustedTemplate(
		uncheckedconversions.TrustedTemplateFromStringKnownToSatisfyTypeContract(rewritten))
}

// LoadGlob loads every template matching pattern from fsys, rewriting each
// per lcfg. It works on any fs.FS, including embed.FS.
func LoadGlob(tpl *template.Template, lcfg LoadConfig, pattern template.TrustedSource, fsys fs.FS) (*template.Template, error) {
	filenames, err := fs.Glob(fsys, pattern.String())
	if err != nil {
		return nil, err
	}
	if len(filenames) == 0 {
		return nil, fmt.Errorf("pattern matches no files: %#q", pattern.String())
	}
	for _, fn := range filenames {
		f, err := fsys.Open(fn)
		if err != nil {
			return nil, err
		}
		b, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}

		name := path.Base(fn)
		var t *template.Template
		if tpl == nil {
			tpl = template.New(name)
		}
		if name == tpl.Name() {
			t = tpl
		} else {
			t = tpl.New(name)
		}
		// The file was resolved from a trusted pattern, so its contents
		// keep the trust of the source.
		tt := uncheckedconversions.TrustedTemplateFromStringKnownToSatisfyTypeContract(string(b))
		if _, err := LoadTrustedTemplate(t, lcfg, tt); err != nil {
			return nil, fmt.Errorf("loading %q: %w", fn, err)
		}
	}
	return tpl, nil
}

// Execute runs the named template with the CSPNonce function bound to
// nonce. An empty name executes the template itself.
func Execute(w io.Writer, tpl *template.Template, name, nonce string, data interface{}) error {
	cloned, err := tpl.Clone()
	if err != nil {
		return err
	}
	cloned = cloned.Funcs(map[string]interface{}{
		"CSPNonce": func() string { return nonce },
	})
	if name == "" {
		return cloned.Execute(w, data)
	}
	return cloned.ExecuteTemplate(w, name, data)
}
