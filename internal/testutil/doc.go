// Package testutil contains helper builders used across tests to reduce
// boilerplate when scripting model output, constructing traces and
// registering tools. They are not intended for production usage.
package testutil
