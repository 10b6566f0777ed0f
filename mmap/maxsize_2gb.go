//go:build 386 || arm || ppc

package mmap

// MaxSize is the largest stream that can be mapped on this platform.
const MaxSize = 0x7FFFFFFF // 2GB
