//go:build mips64 || mips64le

package mmap

// MaxSize is the largest stream that can be mapped on this platform.
const MaxSize = 0x8000000000 // 512GB
