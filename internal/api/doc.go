// Package api exposes the REST surface of the orchestration service: run
// submission and queries, health and metrics endpoints, and the optional
// inference relay mount.
package api
