/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bisturi/tracksync/config"
)

// Archiver bundles the reports of a run into one zip and uploads it to S3.
type Archiver struct {
	Bucket   string
	Prefix   string
	Uploader s3manageriface.UploaderAPI
	Now      func() time.Time
}

// New returns nil when no bucket is configured.
func New(cnf config.ArchiveConfig) (*Archiver, error) {
	if cnf.S3BucketName == "" {
		return nil, nil
	}

	awsCfg := aws.NewConfig()
	if cnf.S3Region != "" {
		awsCfg = awsCfg.WithRegion(cnf.S3Region)
	}
	if cnf.S3Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cnf.S3Endpoint).WithS3ForcePathStyle(true)
	}
	if cnf.AwsAccessKeyId != "" {
		awsCfg = awsCfg.WithCredentials(credentials.NewStaticCredentials(cnf.AwsAccessKeyId, cnf.AwsSecretAccessKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create aws session")
	}

	return &Archiver{
		Bucket:   cnf.S3BucketName,
		Prefix:   cnf.S3Prefix,
		Uploader: s3manager.NewUploader(sess),
		Now:      time.Now,
	}, nil
}

// Key is the object key for a run archived at t: {prefix}/YYYY-MM-DD/tracksync-HHMMSS.zip.
func (a *Archiver) Key(t time.Time) string {
	name := fmt.Sprintf("tracksync-%s.zip", t.Format("150405"))
	return path.Join(a.Prefix, t.Format("2006-01-02"), name)
}

// Upload zips files and stores the bundle. It returns the s3 location.
func (a *Archiver) Upload(ctx context.Context, files ...string) (string, error) {
	var buf bytes.Buffer
	if err := zipFiles(&buf, files); err != nil {
		return "", err
	}

	key := a.Key(a.Now())
	out, err := a.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", key)
	}

	logrus.WithFields(logrus.Fields{
		"bucket": a.Bucket,
		"key":    key,
		"files":  len(files),
	}).Info("Reports archived")
	return out.Location, nil
}

func zipFiles(w io.Writer, files []string) error {
	writer := zip.NewWriter(w)
	for _, file := range files {
		if err := addFile(writer, file); err != nil {
			return err
		}
	}
	return writer.Close()
}

func addFile(writer *zip.Writer, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return errors.Wrap(err, "failed to open report")
	}
	defer src.Close()

	dst, err := writer.Create(filepath.Base(file))
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}
