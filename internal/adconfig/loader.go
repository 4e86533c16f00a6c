package adconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/oboxads-web/internal/cryptoutil"
	"github.com/keithlinneman/oboxads-web/internal/log"
	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

const defaultMaxDocumentBytes = 64 << 10

// ParameterGetter is the SSM call the loader makes. *ssm.Client satisfies it.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ObjectGetter is the S3 call the loader makes. *s3.Client satisfies it.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// SignatureVerifier checks a detached signature. *cryptoutil.KMSVerifier
// satisfies it.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, message, signature []byte) error
}

type LoaderOptions struct {
	Logger log.Logger

	// SSM parameter holding the sha256 of the current settings document.
	SSMParam string

	// Documents live at s3://{S3Bucket}/{S3Prefix}/{hash}.json.
	S3Bucket string
	S3Prefix string

	// KMSKeyID enables signature verification when set. The detached
	// signature is read from {hash}.json.sig.
	KMSKeyID string

	MaxDocumentBytes int64

	// Injected clients; nil ones are built from the default AWS config.
	SSM      ParameterGetter
	S3       ObjectGetter
	Verifier SignatureVerifier

	AWSConfig *aws.Config
}

type Loader struct {
	opts     LoaderOptions
	ssm      ParameterGetter
	s3       ObjectGetter
	verifier SignatureVerifier
	logger   log.Logger
}

func NewLoader(ctx context.Context, opts LoaderOptions) (*Loader, error) {
	if opts.SSMParam == "" {
		return nil, xerrors.New("SSMParam is required")
	}
	if opts.S3Bucket == "" {
		return nil, xerrors.New("S3Bucket is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = defaultMaxDocumentBytes
	}

	needAWS := opts.SSM == nil || opts.S3 == nil || (opts.KMSKeyID != "" && opts.Verifier == nil)
	var awsCfg aws.Config
	if needAWS {
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
	}

	l := &Loader{
		opts:     opts,
		ssm:      opts.SSM,
		s3:       opts.S3,
		verifier: opts.Verifier,
		logger:   opts.Logger,
	}
	if l.ssm == nil {
		l.ssm = ssm.NewFromConfig(awsCfg)
	}
	if l.s3 == nil {
		l.s3 = s3.NewFromConfig(awsCfg)
	}
	if l.verifier == nil && opts.KMSKeyID != "" {
		l.verifier = cryptoutil.NewKMSVerifier(kms.NewFromConfig(awsCfg), opts.KMSKeyID)
	}
	return l, nil
}

// FetchCurrentHash reads the published settings hash from SSM.
func (l *Loader) FetchCurrentHash(ctx context.Context) (string, error) {
	out, err := l.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(l.opts.SSMParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", l.opts.SSMParam)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", l.opts.SSMParam)
	}
	hash, err := cryptoutil.ParseSHA256(*out.Parameter.Value)
	if err != nil {
		return "", xerrors.Wrapf(err, "SSM parameter %s", l.opts.SSMParam)
	}
	return hash, nil
}

func (l *Loader) key(hash, suffix string) string {
	if l.opts.S3Prefix != "" {
		return l.opts.S3Prefix + "/" + hash + suffix
	}
	return hash + suffix
}

func (l *Loader) getObject(ctx context.Context, key string) ([]byte, error) {
	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.opts.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, xerrors.Wrapf(err, "get S3 object s3://%s/%s", l.opts.S3Bucket, key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, l.opts.MaxDocumentBytes+1))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read S3 object %s", key)
	}
	if int64(len(data)) > l.opts.MaxDocumentBytes {
		return nil, xerrors.Newf("S3 object %s exceeds %d bytes", key, l.opts.MaxDocumentBytes)
	}
	return data, nil
}

// LoadHash downloads, verifies and decodes the settings document for hash.
func (l *Loader) LoadHash(ctx context.Context, hash string) (*Snapshot, error) {
	loadedAt := time.Now().UTC()
	key := l.key(hash, ".json")

	l.logger.Info(ctx, "downloading ad settings",
		"bucket", l.opts.S3Bucket,
		"key", key,
	)

	doc, err := l.getObject(ctx, key)
	if err != nil {
		return nil, err
	}

	if actual := cryptoutil.SHA256Hex(doc); !cryptoutil.HashEqual(actual, hash) {
		return nil, xerrors.Newf("checksum mismatch: expected %s, got %s", hash, actual)
	}

	if l.verifier != nil {
		sig, err := l.getObject(ctx, l.key(hash, ".json.sig"))
		if err != nil {
			return nil, xerrors.Wrap(err, "fetch settings signature")
		}
		if err := l.verifier.VerifySignature(ctx, doc, sig); err != nil {
			return nil, xerrors.Wrap(err, "verify settings signature")
		}
	}

	settings, err := Decode(doc)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Settings: settings,
		Hash:     hash,
		Source:   SourceS3,
		LoadedAt: loadedAt,
	}, nil
}

func (l *Loader) Load(ctx context.Context) (*Snapshot, error) {
	hash, err := l.FetchCurrentHash(ctx)
	if err != nil {
		return nil, err
	}
	return l.LoadHash(ctx, hash)
}

// LoadIntoManager fetches the current settings and activates them.
func (l *Loader) LoadIntoManager(ctx context.Context, mgr *Manager) error {
	snap, err := l.Load(ctx)
	if err != nil {
		return err
	}
	mgr.Set(*snap)
	return nil
}

// Decode parses a settings document, fills defaults and validates it.
// Unknown fields are rejected.
func Decode(doc []byte) (Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.DisallowUnknownFields()

	var s Settings
	if err := dec.Decode(&s); err != nil {
		return Settings{}, xerrors.Wrap(err, "decode settings document")
	}
	s = s.WithDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, xerrors.Wrap(err, "invalid settings document")
	}
	return s, nil
}
