package domain

import "errors"

// ErrSessionNotFound is returned when a conversation has no stored session.
var ErrSessionNotFound = errors.New("session not found")

// ErrFlowNotFound is returned when a flow ID cannot be resolved.
var ErrFlowNotFound = errors.New("flow not found")

// ErrToolNotFound is returned when a tool ID cannot be resolved.
var ErrToolNotFound = errors.New("tool not found")

// ErrToolInactive is returned when a flow references a deactivated tool.
var ErrToolInactive = errors.New("tool is inactive")

// ErrCacheMiss is returned by the tool response cache when no row exists for
// a request key.
var ErrCacheMiss = errors.New("tool response cache miss")
