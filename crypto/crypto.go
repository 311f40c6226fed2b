// Package crypto wraps the ECDSA-P256 sign/verify and SHA-256 primitives the
// protocol needs, in the fixed-size wire encodings defined by package wire.
//
// These are treated elsewhere as an opaque "vetted library." The only other
// ECDSA code around (bip32, the picosign tool) is built on secp256k1 — the
// Bitcoin curve, not NIST P-256 — so none of it can serve here; see
// DESIGN.md for why crypto/ecdsa (the standard library's vetted, constant-time
// P-256 implementation) is used directly instead of a third-party package.
package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"carfob.dev/wire"
)

var curve = elliptic.P256()

// SHA256 hashes data, matching the firmware's streaming sb_sha256_* calls
// collapsed into one call.
func SHA256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// FeatureDigest computes SHA256(car_pubkey || feature_index), the message a
// Package signs.
func FeatureDigest(carPubKey wire.P256Pub, featureIndex uint8) [32]byte {
	return SHA256(carPubKey[:], []byte{featureIndex})
}

// GenerateKey generates a fresh P-256 keypair using r as the entropy source.
// Production callers pass crypto/rand.Reader; tests may pass a DRBG.
func GenerateKey(r io.Reader) (priv wire.P256Priv, pub wire.P256Pub, err error) {
	k, err := ecdsa.GenerateKey(curve, r)
	if err != nil {
		return priv, pub, fmt.Errorf("crypto: generate key: %w", err)
	}
	return encodePriv(k), encodePub(&k.PublicKey), nil
}

// Sign signs digest with priv, consuming randomness from r (normally the
// device DRBG). Returns the signature in fixed r||s wire form.
func Sign(r io.Reader, priv wire.P256Priv, digest [32]byte) (wire.Signature, error) {
	var sig wire.Signature
	k := decodePriv(priv)
	rr, ss, err := ecdsa.Sign(r, k, digest[:])
	if err != nil {
		return sig, fmt.Errorf("crypto: sign: %w", err)
	}
	rr.FillBytes(sig[:32])
	ss.FillBytes(sig[32:])
	return sig, nil
}

// Verify reports whether sig is a valid ECDSA-P256 signature over digest
// under pub.
func Verify(pub wire.P256Pub, digest [32]byte, sig wire.Signature) bool {
	k := decodePub(pub)
	if k == nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(k, digest[:], r, s)
}

func encodePriv(k *ecdsa.PrivateKey) wire.P256Priv {
	var out wire.P256Priv
	k.D.FillBytes(out[:])
	return out
}

func decodePriv(priv wire.P256Priv) *ecdsa.PrivateKey {
	d := new(big.Int).SetBytes(priv[:])
	k := new(ecdsa.PrivateKey)
	k.Curve = curve
	k.D = d
	k.PublicKey.X, k.PublicKey.Y = curve.ScalarBaseMult(priv[:])
	return k
}

func encodePub(pub *ecdsa.PublicKey) wire.P256Pub {
	var out wire.P256Pub
	pub.X.FillBytes(out[:32])
	pub.Y.FillBytes(out[32:])
	return out
}

func decodePub(pub wire.P256Pub) *ecdsa.PublicKey {
	x := new(big.Int).SetBytes(pub[:32])
	y := new(big.Int).SetBytes(pub[32:])
	if !curve.IsOnCurve(x, y) {
		return nil
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
}

// ErrBadEntropy reports an entropy source that cannot be trusted. Package
// entropy does not return it: it reports an unprovisioned pool as its own
// entropy.ErrBadPool.
var ErrBadEntropy = errors.New("crypto: entropy source unavailable")

// Rand is a convenience default entropy reader for offline tooling
// (cmd/provision) that runs on a host with a real OS CSPRNG, as opposed to
// the clock-less, RNG-less devices package drbg exists for.
var Rand = rand.Reader
