// Package server provides the HTTP management API: action evaluation and
// preview, policy management, audit queries, health, and metrics.
//
// Policy management endpoints read the caller's authority from the
// X-Ganymede-Authority header; requests without one act as viewer and can
// only read.
package server
