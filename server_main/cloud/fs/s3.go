// SPDX-FileCopyrightText: 2021 Softbear, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later

package fs

import (
	"bytes"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type S3Filesystem struct {
	svc            *s3.S3
	artifactBucket string
}

func NewS3Filesystem(session *session.Session, stage string) (*S3Filesystem, error) {
	s3Filesystem := &S3Filesystem{svc: s3.New(session)}

	s3Filesystem.artifactBucket = "cartograph-" + stage + "-artifacts"

	return s3Filesystem, nil
}

var s3ContentTypes = map[string]string{
	".bin":  "application/octet-stream",
	".json": "application/json",
	".png":  "image/png",
}

// ContentType returns the type of key by extension, or nil to let S3 guess.
func ContentType(key string) *string {
	if mime, ok := s3ContentTypes[path.Ext(key)]; ok {
		return aws.String(mime)
	}
	return nil
}

// UploadArtifact stores data under key. Artifacts never change once written.
func (s3Filesystem *S3Filesystem) UploadArtifact(key string, data []byte) error {
	req, _ := s3Filesystem.svc.PutObjectRequest(&s3.PutObjectInput{
		Bucket:       aws.String(s3Filesystem.artifactBucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		CacheControl: aws.String("no-transform, public, max-age=31536000, immutable"),
		ContentType:  ContentType(key),
	})
	return req.Send()
}
