// Package config defines the format-agnostic rule specification model the
// declarative front end produces. The `config.Model` is the boundary between
// the build-file language and the core: the resolver and the rule kinds
// consume it without knowing which concrete syntax (HCL today) produced it.
package config
