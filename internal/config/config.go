// Copyright 2017 The go-probeum Authors
// This file is part of go-probeum.
//
// go-probeum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probeum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probeum. If not, see <http://www.gnu.org/licenses/>.

// Package config is the optional TOML overlay for a photomesh daemon's
// flags, mirroring cmd/gprobe's dumpconfig/-config convention.
package config

import (
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"github.com/probechain/photomesh/internal/daemon"
)

// tomlSettings keeps TOML keys identical to the Go struct field names,
// the same normalization the go-probeum lineage uses.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// File is the on-disk shape of a `-config` TOML file. Command-line flags
// take precedence over any value also set here; see cmd/photomeshd.
type File struct {
	Daemon daemon.Config
}

// Load reads and decodes a TOML config file.
func Load(path string) (File, error) {
	var cfg File
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	err = tomlSettings.NewDecoder(f).Decode(&cfg)
	return cfg, err
}
