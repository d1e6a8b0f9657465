// Package types contains shared type definitions used across the service.
//
// Types here have no dependencies on other internal packages, allowing
// them to be imported from anywhere without creating cycles.
package types
