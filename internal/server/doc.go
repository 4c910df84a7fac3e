// Package server implements the HTTP side of the employee portal: the
// rendered home page, the JSON API its widgets load from, static images,
// and health and metrics endpoints. Dependencies (the shared pool and the
// repositories over it) are passed in through Config.
package server
