// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversation histories. It is not intended
// for production usage.
package testutil
