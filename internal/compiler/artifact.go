package compiler

import "strings"

// Artifact is one file produced by a compile.
type Artifact struct {
	// Name is the path relative to the output directory, slash separated.
	Name string
	// Path is the absolute emission path.
	Path  string
	Bytes []byte
	// IsEntryScript marks the output generated for the entry point.
	IsEntryScript bool
}

// IsScript reports whether the artifact is JavaScript.
func (a Artifact) IsScript() bool {
	return strings.HasSuffix(a.Name, ".js")
}

// EntryScript returns the entry artifact of a compile, if any.
func EntryScript(artifacts []Artifact) (Artifact, bool) {
	for _, a := range artifacts {
		if a.IsEntryScript {
			return a, true
		}
	}
	return Artifact{}, false
}
