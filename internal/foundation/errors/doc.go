// Package errors provides the classified error primitives used across mdkit.
//
// Errors carry a category (config, build, watch, ...), a severity, and
// key/value context, built through a fluent API:
//
//	err := errors.BuildError("compile command failed").
//		WithContext("package", pkg).
//		Build()
//
// Fatal severity means the process cannot continue (a setup failure);
// plain errors are contained to the operation that produced them.
package errors
