//go:build !segmap_disable_padding && (segmap_enable_padding || !(amd64 || 386 || arm || mips || mipsle || wasm))

package opt

// PaddingMult_ scales per-segment cache line padding.
// Padding is automatically enabled for architectures that are NOT:
// - amd64 (x86_64): Hardware optimizations often make padding less critical
// - 32-bit architectures (386, arm, mips, mipsle, wasm): Smaller cache lines/memory constraints
//
// Use: go build -tags=segmap_disable_padding to force it off.
const PaddingMult_ = 1
