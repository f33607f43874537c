//go:build !windows

package main

// systemDirectory is empty off Windows; the generated proxy resolves it at
// runtime.
func systemDirectory() string {
	return ""
}
