// Package tables registers the import definitions with the core registry.
// Import this package for its side effects to make all import types available.
package tables

// Each definition file uses init() to register its import type.
