// Copyright (C) 2024 Far Memory Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package aws signs HTTP requests with AWS Signature Version 4, just
// far enough to let backend.Network talk to an S3-compatible object
// store. It is not a general-purpose AWS client: there is no
// credential-file parsing, no EC2 instance-role chaining, and no
// presigned-URL support, because backend.Network never needs any of
// those: it is constructed with an access key and secret the caller
// already holds, and it always sends the request itself rather than
// handing a signed link to something else.
package aws

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	longFormat  = "20060102T150405Z"
	shortFormat = "20060102"
)

// signedHeaders lists, in the required sorted order, the headers this
// package ever signs. backend.Network's PUT/GET/DELETE calls only ever
// set Host and the payload-hash header, so the longer header list the
// full SigV4 spec allows (copy-source headers, security tokens, and so
// on) is left out.
var signedHeaders = []string{"host", "x-amz-content-sha256"}

// Key derives and holds the per-day SigV4 signing material for one
// region/service pair, for a single AWS-style access key.
type Key struct {
	BaseURI   string // object-store base URI, e.g. "https://s3.amazonaws.com"
	Region    string
	Service   string
	AccessKey string

	derived  time.Time
	clamped0 []byte // today's derived key
	clamped1 []byte // tomorrow's derived key, so a Key stays valid across midnight
}

// NewKey derives a Key for signing requests to baseURI, scoped to
// region/service, from a long-term access key and secret.
func NewKey(baseURI, accessKey, secret, region, service string) *Key {
	now := time.Now().UTC()
	return &Key{
		BaseURI:   baseURI,
		Region:    region,
		Service:   service,
		AccessKey: accessKey,
		derived:   now,
		clamped0:  deriveSecret(secret, now, region, service),
		clamped1:  deriveSecret(secret, now.Add(24*time.Hour), region, service),
	}
}

func deriveSecret(secret string, when time.Time, region, service string) []byte {
	mac := func(key, msg []byte) []byte {
		h := hmac.New(sha256.New, key)
		h.Write(msg)
		return h.Sum(nil)
	}
	k := mac([]byte("AWS4"+secret), []byte(when.Format(shortFormat)))
	k = mac(k, []byte(region))
	k = mac(k, []byte(service))
	return mac(k, []byte("aws4_request"))
}

func (k *Key) dayKey(when time.Time) []byte {
	if when.Sub(k.derived) >= 24*time.Hour || when.Day() != k.derived.Day() {
		return k.clamped1
	}
	return k.clamped0
}

func (k *Key) scope(now time.Time) string {
	return now.Format(shortFormat) + "/" + k.Region + "/" + k.Service + "/aws4_request"
}

// Sign signs req in place for the body given, setting the Host,
// x-amz-date, x-amz-content-sha256, and Authorization headers and
// attaching body as req's content.
func (k *Key) Sign(req *http.Request, body []byte) {
	now := time.Now().UTC()

	if req.Header.Get("Host") == "" {
		req.Header.Set("Host", req.URL.Host)
	}
	req.Header.Set("x-amz-date", now.Format(longFormat))
	if body == nil {
		req.Header.Set("x-amz-content-sha256", emptyPayloadHash)
	} else {
		req.Header.Set("x-amz-content-sha256", "UNSIGNED-PAYLOAD")
	}

	canon := canonicalRequest(req)
	canonHash := sha256.Sum256([]byte(canon))

	var toSign bytes.Buffer
	toSign.WriteString("AWS4-HMAC-SHA256\n")
	toSign.WriteString(now.Format(longFormat))
	toSign.WriteByte('\n')
	toSign.WriteString(k.scope(now))
	toSign.WriteByte('\n')
	toSign.WriteString(hex.EncodeToString(canonHash[:]))

	sigMAC := hmac.New(sha256.New, k.dayKey(now))
	sigMAC.Write(toSign.Bytes())
	signature := hex.EncodeToString(sigMAC.Sum(nil))

	req.Header.Set("Authorization",
		"AWS4-HMAC-SHA256 Credential="+k.AccessKey+"/"+k.scope(now)+
			", SignedHeaders="+strings.Join(signedHeaders, ";")+
			", Signature="+signature)

	if body != nil {
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.ContentLength = int64(len(body))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(body)), nil }
	} else {
		req.Body = nil
	}
}

// emptyPayloadHash is the SHA-256 hash of an empty byte string, the
// fixed value SigV4 requires for bodiless requests.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func canonicalRequest(req *http.Request) string {
	var dst bytes.Buffer
	dst.WriteString(req.Method)
	dst.WriteByte('\n')

	uri := req.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}
	dst.WriteString(uri)
	dst.WriteByte('\n')
	dst.WriteString(req.URL.RawQuery)
	dst.WriteByte('\n')

	for _, h := range signedHeaders {
		v := req.Header.Get(h)
		if v == "" {
			continue
		}
		dst.WriteString(h)
		dst.WriteByte(':')
		dst.WriteString(v)
		dst.WriteByte('\n')
	}
	dst.WriteByte('\n')
	dst.WriteString(strings.Join(signedHeaders, ";"))
	dst.WriteByte('\n')
	dst.WriteString(req.Header.Get("x-amz-content-sha256"))
	return dst.String()
}
