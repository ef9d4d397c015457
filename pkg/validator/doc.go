// Package validator checks a running cluster against the declared
// time-slicing configuration: node readiness, sliced GPU capacity,
// operator health, and device plugin config consistency.
package validator
