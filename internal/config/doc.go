// Package config loads uebuild settings.
//
// Configuration is organised in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  5. Command Line Flags      │  ← Highest priority (applied by callers)
//	├─────────────────────────────┤
//	│  4. Environment Variables   │  ← UEBUILD_*
//	├─────────────────────────────┤
//	│  3. Project                 │  ← <project>/.uebuild.toml
//	├─────────────────────────────┤
//	│  2. User                    │  ← ~/.config/uebuild/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// A file layer only overrides the keys it sets. Unknown keys are parse
// errors so typos surface instead of being ignored.
//
// # Configuration Files
//
//	# ~/.config/uebuild/config.toml
//	[log]
//	level = "info"
//
//	[engine]
//	path = "/opt/UnrealEngine"
//	install_roots = ["~/Epic Games"]
//
//	[build]
//	platform = "Linux"
//	configuration = "DebugGame"
//
//	[clangd]
//	write_config = true
//	refresh_command = "nvim --server /tmp/nvim.sock --remote-send ':LspRestart<CR>'"
//
// # Environment Variables
//
// Every setting has an environment variable named after its section and
// key, for example UEBUILD_ENGINE_PATH, UEBUILD_BUILD_CONFIGURATION and
// UEBUILD_CLANGD_ADD (comma separated).
package config
