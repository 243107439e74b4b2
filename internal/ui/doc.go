// Package ui holds the terminal front ends: interactive prompts backed by
// huh and a full-screen output view backed by tcell.
package ui
