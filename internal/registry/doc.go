// Package registry holds the built-in loaders and presets compiled into the
// tsforge binary.
//
// A loader is a Go function that produces the source text of a synthetic
// entry module from the build options; a preset is an HCL template rendered
// with the same options. Both are registered by Modules at startup and looked
// up by name as the first strategy of the entry resolver chain.
//
// During application startup the registry is populated and then validated,
// so a broken built-in template is reported before any build starts.
package registry
