// Package diagnostics keeps clangd working for Unreal projects.
//
// After UnrealBuildTool writes compile_commands.json, ProcessCompileDB
// copies it into the project root, optionally filtered to the project's
// own translation units. WriteClangd maintains a companion .clangd file.
// A Refresher tells the editor's language client to reload once a build
// has succeeded.
package diagnostics
