// Package store persists children, themes, art styles, stories, and story
// pages in SQLite. It owns the schema, status vocabularies, and the cached
// reference lookups the generation pipeline reads on every run.
package store
