// Package config defines the format-agnostic model of a flow: the steps,
// their dependency edges, request templates, substitution rules, and default
// endpoints that together describe a token-exchange walkthrough.
//
// The model is produced once at startup by a config.Loader implementation
// (see internal/hcl) and is immutable afterwards. Everything executable in
// the engine is data in this model; there is no code-order sequencing of
// steps anywhere else in the program.
package config
