// Package staging loads firmware images from an S3 compatible store into the
// staging partition.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/autopeer-io/meshnode/internal/meshnode/core"
	"github.com/autopeer-io/meshnode/internal/pkg/crc"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/options"
)

// ErrImageTooLarge is returned when an image does not fit behind the image
// offset of the staging partition.
var ErrImageTooLarge = errors.New("image does not fit the staging partition")

// Result describes a staged image.
type Result struct {
	Size uint32
	CRC  uint16
}

type Fetcher struct {
	client     *minio.Client
	bucketName string
}

func NewFetcher(opts *options.S3Options) (*Fetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Fetcher{client: client, bucketName: opts.BucketName}, nil
}

// CheckBucket makes sure the firmware bucket exists. It never creates it.
func (f *Fetcher) CheckBucket(ctx context.Context) error {
	exists, err := f.client.BucketExists(ctx, f.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", f.bucketName)
	}
	return nil
}

// Stage copies objectKey into dst starting at offset and returns the values a
// start request for it needs.
func (f *Fetcher) Stage(ctx context.Context, objectKey string, dst core.Partition, offset uint32, bufSize int) (Result, error) {
	obj, err := f.client.GetObject(ctx, f.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return Result{}, fmt.Errorf("failed to get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("failed to stat object %s: %w", objectKey, err)
	}
	if int64(offset)+info.Size > dst.Size() {
		return Result{}, fmt.Errorf("%s is %d bytes: %w", objectKey, info.Size, ErrImageTooLarge)
	}

	log.Info("Staging image", "bucket", f.bucketName, "object", objectKey, "size", info.Size, "etag", info.ETag)
	return copyInto(ctx, obj, dst, int64(offset), make([]byte, bufSize))
}

// copyInto writes everything r yields into dst from off on, computing the CRC
// on the way.
func copyInto(ctx context.Context, r io.Reader, dst core.Partition, off int64, buf []byte) (Result, error) {
	var (
		sum     uint16
		written int64
	)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if off+written+int64(n) > dst.Size() {
				return Result{}, ErrImageTooLarge
			}
			if err := dst.Write(ctx, off+written, buf[:n]); err != nil {
				return Result{}, fmt.Errorf("write staging at %d: %w", off+written, err)
			}
			sum = crc.Update(sum, buf[:n])
			written += int64(n)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return Result{}, fmt.Errorf("read image: %w", rerr)
		}
	}

	if written == 0 {
		return Result{}, errors.New("image is empty")
	}
	return Result{Size: uint32(written), CRC: sum}, nil
}
