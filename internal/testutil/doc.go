// Package testutil provides fixtures (clients, grants, random strings) and a
// mock clock shared by the package test suites.
package testutil
