// Package app wires the Unreal build components into end-to-end
// invocations.
//
// A Service owns the engine session cache and the executor shared by
// every invocation of one editor or CLI session:
//
//	Request ──► Locate (project, engine chain)
//	        ──► Targets / Select (target, configuration)
//	        ──► command.Build
//	        ──► Start (task.Executor, output sink)
//	        ──► Finish (compile DB, .clangd, diagnostics refresh on exit 0)
//
// Failures carry the unreal error taxonomy. Classify maps them onto a
// Kind and Report notifies everything except cancellation.
package app
