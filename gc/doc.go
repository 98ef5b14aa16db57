// Package gc implements a stop-the-world mark-and-sweep garbage collector
// for a managed-language runtime, with optional parallel marking performed
// cooperatively by mutator threads while the world is stopped.
//
// The algorithm decomposes into the following steps, run once per epoch by
// a single dedicated GC goroutine:
//
//  0. A request arrives (allocation pressure, OOM, or an explicit call) and
//     is coalesced with any other pending request into one epoch number.
//  1. The GC thread publishes markingRequested and asks the suspension
//     primitive to stop every other mutator.
//  2. The GC thread spins until every mutator is suspended, native, or has
//     raised its own "marking" flag (meaning it will mark its own roots).
//  3. The GC thread collects the global root set and, under markingMutex,
//     releases all self-marking mutators to scan their own stacks and TLS
//     in parallel, draining private mark queues.
//  4. The GC thread drains any residual work itself, then waits for every
//     mutator to finish marking and be fully suspended.
//  5. Sweep runs in two phases: extra-object metadata while the world is
//     still stopped, then the main object factory once threads resume,
//     producing a finalizer queue that is handed off to a finalizer worker.
//
// Object identity is a stable address owned by an external factory; this
// package never owns an object's lifetime, only a lock-free two-state color
// (White/Black) attached to a per-object ObjectData slot. See Mark, Sweep,
// and the Collector type for the operations this package exports.
package gc
