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

// Package config loads cspcheck deny-list configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// DeniedAPI is one banned fully qualified function or import name.
type DeniedAPI struct {
	// Name is the fully qualified identifier, e.g. "legacy/web.SetCSP".
	Name string `json:"name"`
	// Msg explains the rationale, typically pointing at the replacement.
	Msg string `json:"msg"`
	// Exemptions lists packages the check is skipped for.
	Exemptions []Exemption `json:"exemptions"`
}

// Exemption allows one package to keep using a denied API.
type Exemption struct {
	Justification string `json:"justification"`
	// AllowedPkg is a path.Match pattern of exempted package paths.
	AllowedPkg string `json:"allowedPkg"`
}

// Config is a loaded deny list.
type Config struct {
	Imports   []DeniedAPI `json:"imports"`
	Functions []DeniedAPI `json:"functions"`
}

// Read loads and concatenates the given config files. Colliding files are
// not merged: each file's checks apply separately, so one file's exemption
// never cancels another file's deny entry.
func Read(files []string) (*Config, error) {
	var merged Config
	for _, file := range files {
		cfg, err := readFile(file)
		if err != nil {
			return nil, err
		}
		merged.Imports = append(merged.Imports, cfg.Imports...)
		merged.Functions = append(merged.Functions, cfg.Functions...)
	}
	return &merged, nil
}

func readFile(filename string) (*Config, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config: %s is a directory", filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", filename, err)
	}
	return &cfg, nil
}
