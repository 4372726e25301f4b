//go:build !xpackx86

package xpack

// x86FilterAvailable reports whether this build includes the x86
// preprocessing transform.
const x86FilterAvailable = false
