// Package adaptive provides authenticated encryption with automatic
// algorithm selection, used to protect checkpoint bodies at rest.
//
// Supported algorithms:
//
//   - AES-256-GCM: preferred when hardware AES support is available
//   - ChaCha20-Poly1305: fallback for systems without AES-NI
//
// Keys come either raw (16/24/32 bytes, hex-encoded in configuration) or
// derived from an operator passphrase via argon2id (see DeriveKey).
//
// @adr AD-0201
package adaptive
