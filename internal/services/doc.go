// Package services holds cross-cutting helpers shared by the generation
// pipeline: the sentinel error taxonomy with stage-aware wrapping, retry
// classification, and context annotation for story, stage, page, and request
// correlation identifiers.
package services
