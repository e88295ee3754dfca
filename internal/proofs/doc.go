// Package proofs implements the cryptographic primitives attesting agent
// behavior: a genesis digest derived from the original request and a chained
// digest linking every role invocation back to it, forming a tamper-evident
// provenance trail.
package proofs
