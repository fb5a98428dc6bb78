// Package compiler drives esbuild to turn one entry module into a single
// self-contained JavaScript artifact.
//
// An Engine owns exactly one esbuild build context. Each call to Compile runs
// the pipeline stages in a fixed order:
//
//	BeforeCompile -> esbuild rebuild -> OnAssetsReady -> emit -> AfterEmit
//
// Unresolvable imports never fail a compile; they are replaced by a sentinel
// module that throws when it is evaluated.
package compiler
