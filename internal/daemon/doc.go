// Package daemon coordinates the long-running tottalesd process.
//
// It wires configuration, the story store, the orchestrator, and object
// storage into a single lifecycle with flock-based locking to prevent
// multiple instances, and serves the HTTP API the CLI and clients use.
// Story generation requests are acknowledged immediately and run in
// background goroutines; shutdown waits for in-flight generations.
//
// Keep coordination logic here: pipeline steps live in their own packages
// while the daemon focuses on startup, shutdown, and request routing.
package daemon
