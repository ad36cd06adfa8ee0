// Package readers registers all input format readers with the core registry.
// Import this package to ensure all formats are registered.
package readers

// This file exists to provide a single import point.
// Each reader file uses init() to register its format.
