// Package app wires the build system together: it loads the project's build
// files, resolves them into a dependency graph and drives the caching engine
// over it. It is decoupled from any specific entrypoint like a CLI.
package app
