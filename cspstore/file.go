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

// Package cspstore persists CSP violation reports. It provides an
// append-only file log and a SQLite-backed store; both implement
// collector.Store.
package cspstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/google/go-csp/cspreport"
)

// FileStore appends each report as pretty-printed JSON plus a newline to a
// single file, creating it on first write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save appends the report to the log file.
func (s *FileStore) Save(_ context.Context, _ string, r *cspreport.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("cspstore: open %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(r.Pretty(), '\n')); err != nil {
		return fmt.Errorf("cspstore: append to %s: %w", s.path, err)
	}
	return nil
}
