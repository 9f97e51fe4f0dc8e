// Package errors provides structured error types for the storage bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the operation name, the storage path and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStorage, errors.KindIO).
//		Op("xTruncate").
//		Path("db", "main.db").
//		Cause(cause).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidTag(7, 0)
//	err := errors.IO("xRead", "/db/main.db", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
