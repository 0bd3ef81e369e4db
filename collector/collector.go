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

// Package collector provides an HTTP endpoint that receives CSP violation
// reports. Register the handler on the path the policy's report-uri points
// at, for POST requests only.
package collector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/go-csp/cspreport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store persists accepted violation reports. Implementations must be safe
// for concurrent use.
type Store interface {
	Save(ctx context.Context, id string, r *cspreport.Report) error
}

// Handler receives violation reports and hands them to a Store. It accepts
// the deprecated application/csp-report serialization sent for report-uri as
// well as Reporting API application/reports+json batches.
//
// Reports are best-effort: a Store failure is logged and the browser still
// gets a success response, so a broken disk never turns into client-visible
// errors on a fire-and-forget endpoint.
type Handler struct {
	store Store
	log   *zap.Logger
}

// New creates a Handler backed by store. log may be nil.
func New(store Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{store: store, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	switch r.Header.Get("Content-Type") {
	case "application/csp-report":
		h.handleCSPReport(w, r, body)
	case "application/reports+json":
		h.handleReportingAPI(w, r, body)
	default:
		http.Error(w, http.StatusText(http.StatusUnsupportedMediaType), http.StatusUnsupportedMediaType)
	}
}

func (h *Handler) handleCSPReport(w http.ResponseWriter, r *http.Request, body []byte) {
	if !json.Valid(body) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	// A nil report is valid JSON that parsed to nothing: either the
	// csp-report wrapper is missing or a noise filter fired. Both answer
	// success with nothing stored.
	if rep := cspreport.Parse(body, r.UserAgent()); rep != nil {
		h.save(r.Context(), rep)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReportingAPI(w http.ResponseWriter, r *http.Request, body []byte) {
	var list []struct {
		Type string                 `json:"type"`
		Body map[string]interface{} `json:"body"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	for _, item := range list {
		if item.Type != "csp-violation" || item.Body == nil {
			continue
		}
		if rep := cspreport.FromReportingAPI(item.Body, r.UserAgent()); rep != nil {
			h.save(r.Context(), rep)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) save(ctx context.Context, rep *cspreport.Report) {
	id := uuid.NewString()
	if err := h.store.Save(ctx, id, rep); err != nil {
		h.log.Warn("storing csp violation report failed",
			zap.String("id", id),
			zap.String("document_uri", rep.DocumentURI),
			zap.Error(err))
		return
	}
	h.log.Info("csp violation report stored",
		zap.String("id", id),
		zap.String("document_uri", rep.DocumentURI),
		zap.String("blocked_uri", rep.BlockedURI),
		zap.String("violated_directive", rep.ViolatedDirective))
}
