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

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"regexp"
)

// HashOptions configures AddHashes. The zero value infers the algorithm from
// a pre-encoded digest's length and defaults to SHA-256 for raw content.
type HashOptions struct {
	// Algorithm forces a specific hash algorithm. Unsupported values fail
	// with ErrInvalidAlgorithm.
	Algorithm Algorithm
	// StrictDynamic additionally adds the 'strict-dynamic' token.
	StrictDynamic bool
}

// base64Value matches a standard base64 encoding without whitespace.
var base64Value = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)

// AddHash adds a hash source for data to a single directive with default
// options. See AddHashes.
func (p *Policy) AddHash(d Directive, data string) error {
	return p.AddHashes([]Directive{d}, data, HashOptions{})
}

// AddHashes adds a '<algo>-<digest>' source expression for data to each
// directive. data is treated as an already-encoded digest when it is exactly
// 44, 64 or 88 base64 characters long, the standard encodings of SHA-256,
// SHA-384 and SHA-512 digests; anything else is hashed as raw content and
// base64-encoded.
func (p *Policy) AddHashes(ds []Directive, data string, opts HashOptions) error {
	algo := opts.Algorithm
	if algo != "" && !algo.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlgorithm, algo)
	}

	var digest string
	if inferred, ok := digestLength[len(data)]; ok && base64Value.MatchString(data) {
		digest = data
		if algo == "" {
			algo = inferred
		}
	} else {
		if algo == "" {
			algo = SHA256
		}
		digest = hashAndEncode(algo, data)
	}

	sources := []string{string(algo) + "-" + digest}
	if opts.StrictDynamic {
		sources = append(sources, StrictDynamic)
	}
	return p.AddSources(ds, sources...)
}

func hashAndEncode(algo Algorithm, data string) string {
	var sum []byte
	switch algo {
	case SHA256:
		h := sha256.Sum256([]byte(data))
		sum = h[:]
	case SHA384:
		h := sha512.Sum384([]byte(data))
		sum = h[:]
	case SHA512:
		h := sha512.Sum512([]byte(data))
		sum = h[:]
	default:
		panic(fmt.Sprintf("csp: unreachable algorithm %q", algo))
	}
	return base64.StdEncoding.EncodeToString(sum)
}
