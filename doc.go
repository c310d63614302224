// Package raceway is the causality analysis engine for the Raceway race
// condition and performance diagnostic system.
//
// Instrumented applications emit [Event] values describing state reads and
// writes, function calls, lock operations, HTTP boundaries, and asynchronous
// spawns. The engine decodes these events (this package), reconstructs the
// happens-before partial order with vector clocks (package vectorclock),
// maintains a per-process causal DAG (package graph), and answers race,
// critical-path, anomaly, and audit-trail queries (package analysis) over
// HTTP (package queryhttp).
//
// Most applications should not construct events by hand; that's the job of
// the client SDK, which is out of scope here. This package exists to decode
// what the SDK sends and to define the shape everything downstream agrees on.
package raceway
