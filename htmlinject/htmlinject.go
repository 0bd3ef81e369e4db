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

// Package htmlinject rewrites HTML templates to carry per-response CSP
// nonces.
//
// A nonce-based policy only admits inline scripts and styles whose tags
// carry the request nonce. Instead of hand-editing every template, Transform
// rewrites the template source once at load time, stamping a
// nonce="{{CSPNonce}}" attribute on the tags the policy cares about; the
// CSPNonce template function then supplies the live value on every execute.
package htmlinject

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Rule instructs Transform on how to rewrite the template.
type Rule struct {
	// Name is used for debug purposes in case rewriting fails.
	Name string
	// OnTag is the tag that triggers the rule.
	OnTag string
	// WithAttributes filters matched tags: the rule only runs on tags
	// carrying all the given attribute key:value pairs.
	WithAttributes map[string]string
	// AddAttributes is appended verbatim inside the matched opening tag, so
	// every entry should start with a space.
	AddAttributes []string
	// AddNodes is appended immediately after the matched opening tag. For
	// elements with a closing tag the added nodes become children, for
	// self-closing tags they become siblings.
	AddNodes []string
}

func (r Rule) String() string { return r.Name }

// Config is a set of related Rules applied together.
type Config []Rule

// CSPNoncesDefault rewrites templates so script and style tags expect the
// CSPNonce template function to provide their nonce attribute.
var CSPNoncesDefault = CSPNonces(`nonce="{{CSPNonce}}"`)

// CSPNonces constructs a Config that adds the given nonce attribute to
// script tags, style tags and the link forms that load scripts and
// stylesheets. The attribute is automatically prefixed with the required
// space.
func CSPNonces(nonceAttr string) Config {
	nonceAttr = " " + nonceAttr
	return Config{
		Rule{
			Name:          "Nonces for scripts",
			OnTag:         "script",
			AddAttributes: []string{nonceAttr},
		},
		Rule{
			Name:          "Nonces for styles",
			OnTag:         "style",
			AddAttributes: []string{nonceAttr},
		},
		Rule{
			Name:           "Nonces for link rel=stylesheet",
			OnTag:          "link",
			WithAttributes: map[string]string{"rel": "stylesheet"},
			AddAttributes:  []string{nonceAttr},
		},
		Rule{
			Name:           "Nonces for link as=script rel=preload",
			OnTag:          "link",
			WithAttributes: map[string]string{"rel": "preload", "as": "script"},
			AddAttributes:  []string{nonceAttr},
		},
	}
}

// Transform rewrites the given template source according to the given
// configs and returns the rewritten source.
func Transform(src io.Reader, cfg ...Config) (string, error) {
	rw := rewriter{
		rules:     map[string][]Rule{},
		tokenizer: html.NewTokenizer(src),
		out:       &strings.Builder{},
	}
	for _, c := range cfg {
		for _, r := range c {
			rw.rules[r.OnTag] = append(rw.rules[r.OnTag], r)
		}
	}
	if err := rw.rewrite(); err != nil {
		return "", fmt.Errorf("transforming template: %v", err)
	}
	return rw.out.String(), nil
}

type rewriter struct {
	// tag -> rules for that tag
	rules     map[string][]Rule
	tokenizer *html.Tokenizer
	out       *strings.Builder
}

// emitRaw copies the current raw token to the output.
func (r rewriter) emitRaw() error {
	_, err := r.out.Write(r.tokenizer.Raw())
	return err
}

// emit writes the given slice to the output.
func (r rewriter) emit(p []byte) error {
	_, err := r.out.Write(p)
	return err
}

func (r rewriter) emitString(s string) error {
	_, err := r.out.WriteString(s)
	return err
}

// rewrite runs the rewriter.
func (r rewriter) rewrite() error {
	for {
		switch tkn := r.tokenizer.Next(); tkn {
		case html.ErrorToken:
			if err := r.tokenizer.Err(); !errors.Is(err, io.EOF) {
				return err
			}
			// We got EOF, let's just emit the last token and exit.
			return r.emitRaw()
		case html.StartTagToken, html.SelfClosingTagToken:
			if err := r.processTag(); err != nil {
				return err
			}
		default:
			if err := r.emitRaw(); err != nil {
				return err
			}
		}
	}
}

func (r rewriter) processTag() error {
	// TagName and TagAttr invalidate Raw, take a copy first.
	raw := append([]byte(nil), r.tokenizer.Raw()...)

	name, hasAttr := r.tokenizer.TagName()
	rules := r.rules[string(name)]
	if len(rules) == 0 {
		return r.emit(raw)
	}

	attrs := map[string]string{}
	for hasAttr {
		var k, v []byte
		k, v, hasAttr = r.tokenizer.TagAttr()
		attrs[string(k)] = string(v)
	}

	var addAttrs, addNodes []string
ruleLoop:
	for _, rule := range rules {
		for k, v := range rule.WithAttributes {
			if attrs[k] != v {
				continue ruleLoop
			}
		}
		addAttrs = append(addAttrs, rule.AddAttributes...)
		addNodes = append(addNodes, rule.AddNodes...)
	}
	if len(addAttrs) == 0 && len(addNodes) == 0 {
		return r.emit(raw)
	}

	// Splice the new attributes in right before the tag closer.
	closer := []byte(">")
	if bytes.HasSuffix(raw, []byte("/>")) {
		closer = []byte("/>")
	}
	if err := r.emit(raw[:len(raw)-len(closer)]); err != nil {
		return err
	}
	for _, a := range addAttrs {
		if err := r.emitString(a); err != nil {
			return err
		}
	}
	if err := r.emit(closer); err != nil {
		return err
	}
	for _, n := range addNodes {
		if err := r.emitString(n); err != nil {
			return err
		}
	}
	return nil
}
