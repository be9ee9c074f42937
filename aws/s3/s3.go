// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 loads source tables from delimited objects in an S3 bucket.
// Object keys are <prefix>/<table id><extension>.
package s3

import (
	"iter"
	"path"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/table"
	"github.com/pkg/errors"
)

// LoaderOption is a functional option type for s3.Loader.
type LoaderOption func(l *Loader)

// OptLoaderPrefix sets the key prefix under which table objects are stored.
func OptLoaderPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.prefix = prefix
	}
}

// OptLoaderRegion sets the AWS region for a Loader.
func OptLoaderRegion(region string) LoaderOption {
	return func(l *Loader) {
		l.region = region
	}
}

// OptLoaderExtension sets the extension appended to table ids.
func OptLoaderExtension(ext string) LoaderOption {
	return func(l *Loader) {
		l.ext = ext
	}
}

// OptLoaderSeparator sets the cell separator of the table objects.
func OptLoaderSeparator(sep rune) LoaderOption {
	return func(l *Loader) {
		l.sep = sep
	}
}

// OptLoaderClient makes the Loader use api instead of creating a client from
// a new AWS session.
func OptLoaderClient(api s3iface.S3API) LoaderOption {
	return func(l *Loader) {
		l.s3 = api
	}
}

// Loader is a hdk.TableLoader which reads tables from S3. It is safe for
// concurrent use.
type Loader struct {
	bucket string
	prefix string
	region string
	ext    string
	sep    rune

	s3 s3iface.S3API

	exists sync.Map // id -> bool
}

// NewLoader returns a new Loader for bucket with the options applied.
func NewLoader(bucket string, opts ...LoaderOption) (*Loader, error) {
	l := &Loader{
		bucket: bucket,
		region: "us-east-1",
		ext:    table.DefaultExtension,
		sep:    '\t',
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if l.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(l.region)},
		)
		if err != nil {
			return nil, errors.Wrap(err, "getting new session")
		}
		l.s3 = s3.New(sess)
	}
	return l, nil
}

// Key returns the object key backing table id.
func (l *Loader) Key(id string) string {
	return path.Join(l.prefix, id+l.ext)
}

// Exists implements hdk.TableLoader using HeadObject. Any failure is
// reported as a missing table.
func (l *Loader) Exists(id string) bool {
	if v, ok := l.exists.Load(id); ok {
		return v.(bool)
	}
	_, err := l.s3.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.Key(id)),
	})
	ok := err == nil
	l.exists.Store(id, ok)
	return ok
}

// Rows implements hdk.TableLoader. The object is fetched when iteration
// starts and its body is streamed through the delimited row reader.
func (l *Loader) Rows(id string) (iter.Seq2[hdk.Row, error], error) {
	key := l.Key(id)
	if !l.Exists(id) {
		return nil, l.notFound(id)
	}
	return func(yield func(hdk.Row, error) bool) {
		result, err := l.s3.GetObject(&s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				l.exists.Store(id, false)
				yield(nil, l.notFound(id))
				return
			}
			yield(nil, errors.Wrapf(err, "fetching %v", key))
			return
		}
		defer result.Body.Close()
		for row, err := range table.ReadRows(result.Body, id, l.sep) {
			if !yield(row, err) {
				return
			}
		}
	}, nil
}

func (l *Loader) notFound(id string) error {
	return &hdk.TableNotFoundError{TableID: id, Location: "s3://" + l.bucket + "/" + l.Key(id)}
}

func isNotFound(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
