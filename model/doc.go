// Package model defines a provider-agnostic completion interface used by
// actions that ask a language model for advice.
//
// Providers (OpenAI, Anthropic) live in sub-packages so the core runtime does
// not depend on vendor SDKs unless a model is configured.
package model
