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

package csp

import "strings"

// Directive names a single Content-Security-Policy rule category, e.g. which
// origins scripts may be loaded from. Only the constants declared in this
// package are valid: passing any other value to a Policy operation fails with
// ErrInvalidDirective.
type Directive string

// Document directives.
const (
	BaseURI Directive = "base-uri"
	Sandbox Directive = "sandbox"
)

// Fetch directives.
const (
	ChildSrc    Directive = "child-src"
	ConnectSrc  Directive = "connect-src"
	DefaultSrc  Directive = "default-src"
	FontSrc     Directive = "font-src"
	FrameSrc    Directive = "frame-src"
	ImgSrc      Directive = "img-src"
	ManifestSrc Directive = "manifest-src"
	MediaSrc    Directive = "media-src"
	ObjectSrc   Directive = "object-src"
	ScriptSrc   Directive = "script-src"
	StyleSrc    Directive = "style-src"
	WorkerSrc   Directive = "worker-src"
)

// Navigation directives.
const (
	FormAction     Directive = "form-action"
	FrameAncestors Directive = "frame-ancestors"
)

var directives = map[Directive]bool{
	BaseURI:        true,
	Sandbox:        true,
	ChildSrc:       true,
	ConnectSrc:     true,
	DefaultSrc:     true,
	FontSrc:        true,
	FrameSrc:       true,
	ImgSrc:         true,
	ManifestSrc:    true,
	MediaSrc:       true,
	ObjectSrc:      true,
	ScriptSrc:      true,
	StyleSrc:       true,
	WorkerSrc:      true,
	FormAction:     true,
	FrameAncestors: true,
}

// IsValid reports whether d is a member of the closed directive set.
func (d Directive) IsValid() bool { return directives[d] }

func (d Directive) String() string { return string(d) }

// fallback maps each fetch directive to the directive it inherits sources
// from when it is first written to without having been configured. frame-src
// falls back through child-src, the remaining fetch directives fall back to
// default-src directly. Navigation and document directives never fall back:
// browsers do not consult default-src for them.
var fallback = map[Directive]Directive{
	ChildSrc:   DefaultSrc,
	ConnectSrc: DefaultSrc,
	FontSrc:    DefaultSrc,
	FrameSrc:   ChildSrc,
	ImgSrc:     DefaultSrc,
	MediaSrc:   DefaultSrc,
	ObjectSrc:  DefaultSrc,
	ScriptSrc:  DefaultSrc,
	StyleSrc:   DefaultSrc,
}

// Keyword source tokens. These render single-quoted.
const (
	None          = "none"
	Self          = "self"
	StrictDynamic = "strict-dynamic"
	UnsafeEval    = "unsafe-eval"
	UnsafeHashes  = "unsafe-hashes"
	UnsafeInline  = "unsafe-inline"
)

var tokens = map[string]bool{
	None:          true,
	Self:          true,
	StrictDynamic: true,
	UnsafeEval:    true,
	UnsafeHashes:  true,
	UnsafeInline:  true,
}

// Algorithm identifies a hash algorithm usable in hash source expressions.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// IsValid reports whether a is one of the supported hash algorithms.
func (a Algorithm) IsValid() bool {
	return a == SHA256 || a == SHA384 || a == SHA512
}

// digestLength maps the length of a standard base64 encoding of a digest to
// the algorithm that produced it: 32, 48 and 64 byte digests encode to 44, 64
// and 88 characters respectively.
var digestLength = map[int]Algorithm{
	44: SHA256,
	64: SHA384,
	88: SHA512,
}

var quotedPrefixes = []string{"nonce-", "sha256-", "sha384-", "sha512-"}

func isNonceOrHash(src string) bool {
	for _, p := range quotedPrefixes {
		if strings.HasPrefix(src, p) {
			return true
		}
	}
	return false
}

// encodeSource renders a single source expression for the header value.
// Keyword tokens and nonce/hash expressions are single-quoted; anything else
// is a host, scheme or URI pattern and passes through with the value
// separators ";" and "," percent-encoded so a source can never terminate its
// directive early.
func encodeSource(src string) string {
	if tokens[src] || isNonceOrHash(src) {
		return "'" + src + "'"
	}
	src = strings.TrimSpace(src)
	src = strings.ReplaceAll(src, ";", "%3B")
	return strings.ReplaceAll(src, ",", "%2C")
}
