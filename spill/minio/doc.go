// Package minio spills displaced blocks to MinIO and other S3-compatible
// object stores.
package minio
