// Package fleet provides the shared, type-safe domain definitions for the
// Warren orchestration substrate.
//
// # Overview
//
// Warren coordinates a fleet of autonomous worker agents. Three subsystems
// share the types in this package: the versioned agent registry
// (internal/registry), the task lifecycle engine (internal/taskboard), and
// the priority message broker (internal/broker). Keeping the entities here
// gives every subsystem one definition of an agent, a task, and a message,
// with validation owned by the type itself.
//
// # Core Concepts
//
// AgentRecords are the registry's unit of configuration: identity, system
// prompt, capabilities, status, resource limits, and relationships to other
// agents. Every mutation of the registry produces an immutable commit, so a
// record's full history is always recoverable.
//
// Tasks are per-agent units of work with dependency-gated status. A task is
// blocked exactly while at least one of its dependencies is not done; the
// engine derives that classification, clients never set it.
//
// AgentMessages are immutable once enqueued. The broker orders them by
// priority rank (critical > high > medium > low) with FIFO ordering inside a
// band, delivers them on a fixed tick, and archives them into bounded
// per-agent history.
//
// # Validation
//
// Every enum is a typed string with a Validate method, and every entity has a
// Validate method that checks field values before any subsystem persists it.
// Validation failures are returned as *ValidationError before state changes.
//
// # Design Principles
//
//   - Type safety: strong typing with validation methods on every entity
//   - Immutability: messages and commits never change after creation
//   - Fail fast: validation happens before any state mutation
//   - Simplicity: minimal dependencies (only google/uuid)
package fleet
