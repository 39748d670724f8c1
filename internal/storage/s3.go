package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/edvin/pgbackup/internal/model"
)

const (
	// partSize is the first multipart chunk; S3 requires at least 5 MiB per
	// part except the last.
	partSize = 8 << 20
	// maxParts is the S3 limit on parts per upload.
	maxParts = 10_000
	// maxPartSize is the S3 limit on one part.
	maxPartSize int64 = 5 << 30
)

// S3API is the subset of *s3.Client used here.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used here.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 keeps artifacts as objects in one bucket.
type S3 struct {
	client  S3API
	presign Presigner
	bucket  string

	firstPart int64
	maxParts  int32
}

func NewS3(client S3API, presign Presigner, bucket string) *S3 {
	return &S3{client: client, presign: presign, bucket: bucket, firstPart: partSize, maxParts: maxParts}
}

// partSizeFor doubles the part size every tenth of the part limit, so the
// size of a dump never has to be known up front. With the defaults the
// parts add up to more than the 5 TiB S3 object limit.
func (s *S3) partSizeFor(partNum int32) int64 {
	step := s.maxParts / 10
	if step < 1 {
		step = 1
	}
	size := s.firstPart << ((partNum - 1) / step)
	if size > maxPartSize || size <= 0 {
		return maxPartSize
	}
	return size
}

// NewS3FromCredential builds a client from a stored credential. A non-empty
// endpoint selects an S3-compatible store with path-style addressing.
func NewS3FromCredential(c model.Credential, endpoint string) *S3 {
	if c.Endpoint != "" {
		endpoint = c.Endpoint
	}
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(c.KeyID, c.KeySecret, ""),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	client := s3.New(opts)
	return NewS3(client, s3.NewPresignClient(client), c.Bucket)
}

func (s *S3) LocalPath(string) string { return "" }

// Upload streams into a multipart upload. Payloads smaller than one part
// are sent with a single PutObject instead.
func (s *S3) Upload(ctx context.Context, name, contentType string, hooks UploadHooks) (Upload, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	u := &s3Upload{pw: pw, hooks: hooks, name: name, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		size, err := s.send(ctx, name, contentType, pr)
		if err != nil {
			pr.CloseWithError(err)
		}
		u.size, u.err = size, err
	}()
	return u, nil
}

func (s *S3) send(ctx context.Context, name, contentType string, r io.Reader) (int64, error) {
	buf := make([]byte, s.partSizeFor(1))
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return 0, err
	}
	if err != nil {
		_, perr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(name),
			Body:          bytes.NewReader(buf[:n]),
			ContentLength: aws.Int64(int64(n)),
			ContentType:   aws.String(contentType),
		})
		if perr != nil {
			return 0, fmt.Errorf("put object: %w", perr)
		}
		return int64(n), nil
	}

	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return 0, fmt.Errorf("create multipart upload: %w", err)
	}
	abort := func(cause error) (int64, error) {
		_, _ = s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(name),
			UploadId: created.UploadId,
		})
		return 0, cause
	}

	var parts []s3types.CompletedPart
	var total int64
	for partNum := int32(1); ; partNum++ {
		if n > 0 {
			if partNum > s.maxParts {
				return abort(fmt.Errorf("upload exceeds %d parts", s.maxParts))
			}
			out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(s.bucket),
				Key:           aws.String(name),
				UploadId:      created.UploadId,
				PartNumber:    aws.Int32(partNum),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			if err != nil {
				return abort(fmt.Errorf("upload part %d: %w", partNum, err))
			}
			parts = append(parts, s3types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(partNum)})
			total += int64(n)
		}
		if n < len(buf) {
			break
		}
		if next := s.partSizeFor(partNum + 1); next != int64(len(buf)) {
			buf = make([]byte, next)
		}
		n, err = io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return abort(err)
		}
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(name),
		UploadId:        created.UploadId,
		MultipartUpload: &s3types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		return abort(fmt.Errorf("complete multipart upload: %w", err))
	}
	return total, nil
}

type s3Upload struct {
	pw      *io.PipeWriter
	hooks   UploadHooks
	name    string
	written int64

	done chan struct{}
	size int64
	err  error
	once sync.Once
}

func (u *s3Upload) Write(b []byte) (int, error) {
	n, err := u.pw.Write(b)
	u.written += int64(n)
	if n > 0 && u.hooks.OnProgress != nil {
		u.hooks.OnProgress(u.written)
	}
	return n, err
}

func (u *s3Upload) Close() error {
	_ = u.pw.Close()
	<-u.done
	if u.err != nil {
		return u.err
	}
	u.once.Do(func() {
		if u.hooks.OnFinish != nil {
			u.hooks.OnFinish(Object{Name: u.name, Size: u.size})
		}
	})
	return nil
}

func (u *s3Upload) CloseWithError(err error) error {
	_ = u.pw.CloseWithError(err)
	<-u.done
	return nil
}

func (s *S3) Download(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, 0, fmt.Errorf("get object: %w", err)
	}
	return out.Body, aws.ToInt64(out.ContentLength), nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (s *S3) SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", ErrSignedURLUnsupported
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return req.URL, nil
}
