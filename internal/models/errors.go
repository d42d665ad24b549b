package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource Errors
	ErrNotFound = errors.New("resource not found") // General not found

	// Story Graph Load-Time Errors (fatal - a broken graph never enters play)
	ErrMalformedGraph    = errors.New("malformed story graph")
	ErrDanglingReference = errors.New("choice references a node that does not exist")
	ErrNoStartNode       = errors.New("story graph has no valid start node")

	// Runtime Structural Errors (fatal to the current operation)
	ErrOrphanedSession = errors.New("session points at a node absent from the graph")
	ErrNodeNotFound    = errors.New("story node not found")
	ErrBrokenEdge      = errors.New("choice target node is missing from the graph")

	// Snapshot Errors
	ErrCorruptSnapshot = errors.New("session snapshot is corrupt")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
