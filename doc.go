// Package grus is an embedded, single-process, transactional storage
// layer for a hierarchical task/time-tracking model: a forest of named
// nodes with per-node due dates and time-interval sessions, where nodes
// may be re-parented and shared across multiple parents.
//
// The package owns the sorted indices built on top of a paged
// transactional store (see package kv and kv/boltkv) and the write-side
// algorithms — AddChild, Delete, Rename, Share, Cut, MoveUp, MoveDown,
// and friends — that keep those indices consistent across structural
// edits. It does not parse user input, log, or expose a CLI; see
// package dateparse and cmd/grusctl for those concerns.
package grus
