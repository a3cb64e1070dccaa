//go:build segmap_disable_padding || ((amd64 || 386 || arm || mips || mipsle || wasm) && !segmap_enable_padding)

package opt

// PaddingMult_ scales per-segment cache line padding.
// Padding is disabled by default for:
// - amd64
// - 32-bit architectures (386, arm, mips, mipsle, wasm)
//
// Use: go build -tags=segmap_enable_padding to force it on.
const PaddingMult_ = 0
