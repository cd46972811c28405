// Package s3backend is a Global-accessibility Backend backed by an S3
// bucket: any node in the cluster can retrieve a fragment any other node
// committed, since the object store is shared. Session construction
// follows the teacher's aws-sdk-go usage in
// encoding/bamprovider/provider_test.go (session.Options passed to a
// session.NewSessionWithOptions call).
package s3backend

import (
	"bytes"
	"context"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/grailbio/base/traverse"

	"github.com/esdm-project/esdm-go/backend"
	"github.com/esdm-project/esdm-go/catalog"
	"github.com/esdm-project/esdm-go/fragment"
)

// multipartThreshold is the fragment size above which Commit splits its
// payload into multiple parts, fanned out with traverse.Each rather than a
// persistent pool since a single fragment's parts are a one-shot, bounded
// piece of work (see SPEC_FULL.md on why backend.Pool isn't reused here).
const multipartThreshold = 16 << 20 // 16 MiB

// Backend stores fragment bytes as S3 objects keyed by storage key, under
// Prefix within Bucket.
type Backend struct {
	id     fragment.BackendID
	Bucket string
	Prefix string
	cfg    backend.Config
	client *s3.S3
}

// New returns an s3backend.Backend over bucket/prefix, using opts to build
// the AWS session.
func New(id fragment.BackendID, bucket, prefix string, opts session.Options, cfg backend.Config) (*Backend, error) {
	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, err
	}
	if cfg.MaxFragmentSize <= 0 {
		cfg.MaxFragmentSize = 512 << 20
	}
	cfg.DataAccessibility = backend.Global
	return &Backend{
		id:     id,
		Bucket: bucket,
		Prefix: prefix,
		cfg:    cfg,
		client: s3.New(sess),
	}, nil
}

func (b *Backend) ID() fragment.BackendID { return b.id }

func (b *Backend) Config() backend.Config { return b.cfg }

// EstimateThroughput reports a fixed estimate for an S3-class object
// store; a production deployment would track recent PutObject/GetObject
// latencies instead.
func (b *Backend) EstimateThroughput() float64 { return 100 << 20 } // 100 MiB/s

func (b *Backend) objectKey(storageKey string) string {
	if b.Prefix == "" {
		return storageKey
	}
	return b.Prefix + "/" + storageKey
}

// MkfsTarget verifies the bucket is reachable; S3 buckets are provisioned
// out of band, so there is nothing to create beyond a HeadBucket check.
func (b *Backend) MkfsTarget(ctx context.Context, enforce bool) error {
	_, err := b.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.Bucket),
	})
	return err
}

// Commit uploads frag.Buf as a single object, or via a part-per-chunk
// multipart upload (parts fanned out with traverse.Each) when the payload
// exceeds multipartThreshold.
func (b *Backend) Commit(ctx context.Context, frag *fragment.Fragment) error {
	key := catalog.StorageKey(frag.Dataset, frag.Space)
	objKey := b.objectKey(key)
	if int64(len(frag.Buf)) <= multipartThreshold {
		_, err := b.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.Bucket),
			Key:    aws.String(objKey),
			Body:   bytes.NewReader(frag.Buf),
		})
		if err != nil {
			return err
		}
		frag.StorageKey = key
		frag.Status = fragment.Persisted
		return nil
	}
	if err := b.multipartPut(ctx, objKey, frag.Buf); err != nil {
		return err
	}
	frag.StorageKey = key
	frag.Status = fragment.Persisted
	return nil
}

func (b *Backend) multipartPut(ctx context.Context, objKey string, data []byte) error {
	created, err := b.client.CreateMultipartUploadWithContext(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return err
	}
	uploadID := created.UploadId

	nParts := (len(data) + multipartThreshold - 1) / multipartThreshold
	parts := make([]*s3.CompletedPart, nParts)
	err = traverse.Each(nParts, func(i int) error {
		start := i * multipartThreshold
		end := start + multipartThreshold
		if end > len(data) {
			end = len(data)
		}
		partNum := int64(i + 1)
		out, err := b.client.UploadPartWithContext(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(b.Bucket),
			Key:        aws.String(objKey),
			UploadId:   uploadID,
			PartNumber: aws.Int64(partNum),
			Body:       bytes.NewReader(data[start:end]),
		})
		if err != nil {
			return err
		}
		parts[i] = &s3.CompletedPart{ETag: out.ETag, PartNumber: aws.Int64(partNum)}
		return nil
	})
	if err != nil {
		_, _ = b.client.AbortMultipartUploadWithContext(ctx, &s3.AbortMultipartUploadInput{
			Bucket: aws.String(b.Bucket), Key: aws.String(objKey), UploadId: uploadID,
		})
		return err
	}
	_, err = b.client.CompleteMultipartUploadWithContext(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(b.Bucket),
		Key:             aws.String(objKey),
		UploadId:        uploadID,
		MultipartUpload: &s3.CompletedMultipartUpload{Parts: parts},
	})
	return err
}

// Retrieve downloads the object for frag.StorageKey into frag.Buf, which
// must already be sized to frag.ByteSize().
func (b *Backend) Retrieve(ctx context.Context, frag *fragment.Fragment) error {
	out, err := b.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(b.objectKey(frag.StorageKey)),
	})
	if err != nil {
		return err
	}
	defer out.Body.Close()
	data, err := ioutil.ReadAll(out.Body)
	if err != nil {
		return err
	}
	copy(frag.Buf, data)
	frag.Status = fragment.Loaded
	return nil
}
