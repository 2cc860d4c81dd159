// Package hierarchy implements the authorization node graph: roles and
// permissions arranged as a DAG with transitive-closure reachability.
//
// # Overview
//
// An Engine manages one node kind (KindRole or KindPermission). Nodes are
// identified by numeric id and by a unique code; edges connect an ancestor to
// a descendant, and the closure store keeps every reachable (ancestor,
// descendant) pair with its shortest depth so reachability checks never walk
// the graph at read time.
//
// # Engine
//
// Create an engine per kind and serve it over HTTP:
//
//	engine, err := hierarchy.NewEngine(hierarchy.KindRole, hierarchy.EngineOptions{
//	    Nodes:     nodeStore,
//	    Paths:     pathStore,
//	    Cache:     cache,
//	    Scheduler: scheduler,
//	    Logger:    logger,
//	})
//	hierarchy.NewHandlers(engine).RegisterRoutes(router)
//
// Mutations write through the stores and invalidate the node cache; reads
// fall back to the store on any cache miss or cache outage.
//
// # Lifecycle
//
// Deleting a node is immediate. Archiving moves it to the archive table,
// severs its edges, and schedules a hard delete after the retention window;
// recovering before the window elapses cancels the pending hard delete and
// brings the node back detached from the graph. Codes and ids stay reserved
// while a node sits in the archive.
package hierarchy
