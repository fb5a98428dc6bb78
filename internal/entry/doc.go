// Package entry synthesizes the entry module a build starts from.
//
// Without a loader or preset the real entry file is compiled as is. With
// one, the identifier is resolved through an ordered chain of strategies
// (built-in registry, project directory, explicit path) and the result is
// rendered into the source text of a virtual module. The virtual module gets
// a unique path next to the real entry so relative imports keep working and
// no real source file can be shadowed; it is never written to disk.
package entry
