// Package cryptoutil verifies the integrity of runtime ad settings documents:
// content digests compared in constant time, and detached signatures checked
// against an AWS KMS asymmetric public key.
package cryptoutil
