// Package gemini provides a thin client over the Google generative model
// API. It maps SDK failures onto the shared service error taxonomy, applies
// a per-call timeout, and offers helpers for parsing model responses that
// arrive wrapped in Markdown code fences.
package gemini
