package compiler

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// metafile is the subset of the esbuild metafile JSON the engine reads.
type metafile struct {
	Inputs  map[string]metafileInput  `json:"inputs"`
	Outputs map[string]metafileOutput `json:"outputs"`
}

type metafileInput struct {
	Bytes int `json:"bytes"`
}

type metafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]inputContrib `json:"inputs"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

type inputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

func parseMetafile(raw string) (*metafile, error) {
	var m metafile
	if raw == "" {
		return &m, nil
	}
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode metafile: %w", err)
	}
	return &m, nil
}

// entryOutputs returns the absolute paths of outputs generated for an entry
// point. Metafile paths are relative to workDir.
func (m *metafile) entryOutputs(workDir string) map[string]bool {
	out := make(map[string]bool)
	for path, o := range m.Outputs {
		if o.EntryPoint == "" {
			continue
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}
		out[filepath.Clean(path)] = true
	}
	return out
}

// inputBytes sums the contributions of every input to every output.
func (m *metafile) inputBytes() int {
	total := 0
	for _, o := range m.Outputs {
		for _, in := range o.Inputs {
			total += in.BytesInOutput
		}
	}
	return total
}
