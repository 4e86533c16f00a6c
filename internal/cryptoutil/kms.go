package cryptoutil

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

// KeyFetcher is the part of the KMS API the verifier uses. *kms.Client
// satisfies it.
type KeyFetcher interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSVerifier checks detached signatures locally against a KMS public key.
// The key is fetched once and cached.
type KMSVerifier struct {
	client KeyFetcher
	keyID  string

	// AllowPKCS1v15 accepts RSA PKCS1v15 signatures when PSS fails.
	AllowPKCS1v15 bool

	mu     sync.RWMutex
	pubKey crypto.PublicKey
}

func NewKMSVerifier(client KeyFetcher, keyID string) *KMSVerifier {
	return &KMSVerifier{client: client, keyID: keyID}
}

// KeyID returns the configured key id or ARN.
func (v *KMSVerifier) KeyID() string { return v.keyID }

func (v *KMSVerifier) PublicKey(ctx context.Context) (crypto.PublicKey, error) {
	v.mu.RLock()
	if pk := v.pubKey; pk != nil {
		v.mu.RUnlock()
		return pk, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pubKey != nil {
		return v.pubKey, nil
	}
	if v.client == nil {
		return nil, xerrors.New("kms client is not configured")
	}

	out, err := v.client.GetPublicKey(ctx, &kms.GetPublicKeyInput{KeyId: aws.String(v.keyID)})
	if err != nil {
		return nil, xerrors.Wrapf(err, "kms get public key %s", v.keyID)
	}
	if out.KeyUsage != kmstypes.KeyUsageTypeSignVerify {
		return nil, xerrors.Newf("kms key %s has KeyUsage=%s, want SIGN_VERIFY", v.keyID, out.KeyUsage)
	}

	pub, err := x509.ParsePKIXPublicKey(out.PublicKey)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse kms public key")
	}
	v.pubKey = pub
	return pub, nil
}

// VerifySignature verifies signature over message. The hash follows the key:
// SHA-384 for P-384, SHA-256 for P-256 and RSA.
func (v *KMSVerifier) VerifySignature(ctx context.Context, message, signature []byte) error {
	pub, err := v.PublicKey(ctx)
	if err != nil {
		return err
	}
	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		return verifyECDSA(key, message, signature)
	case *rsa.PublicKey:
		return verifyRSA(key, message, signature, v.AllowPKCS1v15)
	default:
		return xerrors.Newf("unsupported public key type %T", pub)
	}
}

func verifyECDSA(key *ecdsa.PublicKey, message, signature []byte) error {
	var digest []byte
	switch key.Curve {
	case elliptic.P256():
		d := sha256.Sum256(message)
		digest = d[:]
	case elliptic.P384():
		d := sha512.Sum384(message)
		digest = d[:]
	default:
		return xerrors.Newf("unsupported ECDSA curve %s", key.Curve.Params().Name)
	}
	if !ecdsa.VerifyASN1(key, digest, signature) {
		return xerrors.Newf("ECDSA signature verification failed (curve %s)", key.Curve.Params().Name)
	}
	return nil
}

func verifyRSA(key *rsa.PublicKey, message, signature []byte, allowPKCS1v15 bool) error {
	digest := sha256.Sum256(message)
	pssErr := rsa.VerifyPSS(key, crypto.SHA256, digest[:], signature, nil)
	if pssErr == nil {
		return nil
	}
	if !allowPKCS1v15 {
		return xerrors.Wrap(pssErr, "RSA-PSS signature verification failed")
	}
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
		return xerrors.Wrap(err, "RSA signature verification failed")
	}
	return nil
}
