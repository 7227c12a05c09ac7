package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/option"
)

// Stage holds the original uploaded files so chat answers can link back to
// them.
type Stage interface {
	Put(ctx context.Context, name string, r io.Reader) error
	URL(ctx context.Context, name string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, name string) error
}

// LocalStage keeps originals in a directory served under publicBase. With a
// link secret its URLs carry a token that expires after the requested TTL.
type LocalStage struct {
	dir        string
	publicBase string
	secret     []byte
}

type LocalStageOption func(*LocalStage)

func WithLinkSecret(secret []byte) LocalStageOption {
	return func(s *LocalStage) {
		s.secret = secret
	}
}

func NewLocalStage(dir, publicBase string, opts ...LocalStageOption) (*LocalStage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	s := &LocalStage{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PublicBase is the URL path the staged files are served under.
func (s *LocalStage) PublicBase() string { return s.publicBase }

// Signed reports whether URL hands out expiring links.
func (s *LocalStage) Signed() bool { return len(s.secret) > 0 }

func (s *LocalStage) path(name string) (string, error) {
	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "/" || clean == "." || clean != name {
		return "", fmt.Errorf("invalid stage name %q", name)
	}
	return filepath.Join(s.dir, clean), nil
}

func (s *LocalStage) Put(_ context.Context, name string, r io.Reader) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("write staged file: %w", err)
	}
	return f.Close()
}

// URL links to the staged file. Signed links expire after ttl.
func (s *LocalStage) URL(_ context.Context, name string, ttl time.Duration) (string, error) {
	if _, err := s.path(name); err != nil {
		return "", err
	}
	link := s.publicBase + "/" + url.PathEscape(name)
	if !s.Signed() {
		return link, nil
	}
	claims := jwt.RegisteredClaims{
		Subject:   name,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign link: %w", err)
	}
	return link + "?token=" + url.QueryEscape(token), nil
}

// VerifyLink checks that token was issued by URL for name and has not expired.
func (s *LocalStage) VerifyLink(name, token string) error {
	if !s.Signed() {
		return nil
	}
	if token == "" {
		return errors.New("missing link token")
	}
	_, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(name),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("invalid link token: %w", err)
	}
	return nil
}

func (s *LocalStage) Delete(_ context.Context, name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// GCSStage keeps originals in a Cloud Storage bucket and hands out V4 signed
// URLs.
type GCSStage struct {
	client *storage.Client
	bucket string
}

func NewGCSStage(ctx context.Context, bucket, credentialsFile string) (*GCSStage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	return &GCSStage{client: client, bucket: bucket}, nil
}

func (s *GCSStage) Put(ctx context.Context, name string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *GCSStage) URL(_ context.Context, name string, ttl time.Duration) (string, error) {
	return s.client.Bucket(s.bucket).SignedURL(name, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
}

func (s *GCSStage) Delete(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", name, s.bucket, err)
	}
	return nil
}

// URI is the gs:// address of an object, as Google APIs read it.
func (s *GCSStage) URI(name string) string {
	return "gs://" + s.bucket + "/" + name
}

func (s *GCSStage) Close() error {
	return s.client.Close()
}
