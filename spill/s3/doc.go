// Package s3 spills displaced blocks to Amazon S3 using streamed multipart
// uploads.
package s3
