// Package objectstore implements the outbound object-store client (step 3
// of C7's process(job)): uploading an HLS bundle's files to an S3-compatible
// bucket with public-read ACLs and long cache headers.
package objectstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Store wraps an S3-compatible client bound to a single bucket.
type Store struct {
	client  *s3.Client
	bucket  string
	cdnBase string
}

// Config addresses any S3-compatible endpoint via a custom BaseEndpoint
// plus static credentials; it is not assumed to be AWS itself.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	CDNBase   string
}

// New builds a Store from static credentials and a custom endpoint,
// following the same explicit-dependency convention as the rest of the
// pipeline's collaborators: nothing here relies on ambient AWS config files
// or environment-sourced default credential chains.
func New(ctx context.Context, cfg Config) (*Store, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Store{client: client, bucket: cfg.Bucket, cdnBase: cfg.CDNBase}, nil
}

var contentTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

const cacheControl = "public, max-age=31536000"

// UploadBundle walks hlsDir and PUTs every file under
// hls/<videoID>/<relative path>, with a public-read ACL, a content-type
// derived from extension, and a one-year cache-control header. The walk
// order uploads master.m3u8 last so the manifest only becomes reachable
// once every segment it references is already in place. Re-running this
// over the same bundle is safe: object keys are deterministic, so a retry
// after a crash simply re-PUTs the same objects.
func (s *Store) UploadBundle(ctx context.Context, hlsDir, videoID string) (string, error) {
	var files []string
	err := filepath.WalkDir(hlsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: walk %s: %w", hlsDir, err)
	}

	sort.Slice(files, func(i, j int) bool {
		iMaster := filepath.Base(files[i]) == "master.m3u8"
		jMaster := filepath.Base(files[j]) == "master.m3u8"
		if iMaster != jMaster {
			return jMaster
		}
		return files[i] < files[j]
	})

	for _, path := range files {
		rel, err := filepath.Rel(hlsDir, path)
		if err != nil {
			return "", fmt.Errorf("objectstore: relativize %s: %w", path, err)
		}
		key := fmt.Sprintf("hls/%s/%s", videoID, filepath.ToSlash(rel))

		if err := s.putFile(ctx, path, key); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("hls/%s/master.m3u8", videoID), nil
}

func (s *Store) putFile(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("objectstore: open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         f,
		ContentType:  aws.String(contentType(key)),
		ACL:          types.ObjectCannedACLPublicRead,
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

func contentType(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ManifestURL builds the CDN-facing URL for a manifest key, if a CDN base
// is configured; otherwise it returns the empty string, since the
// coordinator and catalog only need the storage key itself.
func (s *Store) ManifestURL(manifestKey string) string {
	if s.cdnBase == "" {
		return ""
	}
	return strings.TrimRight(s.cdnBase, "/") + "/" + manifestKey
}
