// Package unreal holds the vocabulary shared by the Unreal Engine build
// packages: the error taxonomy and the resolution scope.
//
// # Subpackages
//
//   - probe: upward and downward filesystem searches
//   - project: .uproject discovery and parsing
//   - engine: engine root resolution chain with session cache and marker file
//   - target: *.Target.cs discovery with a flagged fallback
//   - command: UnrealBuildTool command line construction
package unreal
