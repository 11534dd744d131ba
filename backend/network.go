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

package backend

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/farmemory/client/aws"
)

// Network is a Backend that stores span bytes as objects in an
// S3-compatible bucket, signed with AWS Signature Version 4. The wire
// format is plain HTTP PUT/GET/DELETE; a purpose-built storage-node
// protocol belongs to the storage node's own client, not here.
type Network struct {
	Key    *aws.Key
	Bucket string
	Client *http.Client
}

// NewNetwork returns a Network backend talking to bucket through key.
// If client is nil, http.DefaultClient is used.
func NewNetwork(key *aws.Key, bucket string, client *http.Client) *Network {
	if client == nil {
		client = http.DefaultClient
	}
	return &Network{Key: key, Bucket: bucket, Client: client}
}

func (n *Network) objectURL(id ID) string {
	return fmt.Sprintf("%s/%s/span-%016x", n.Key.BaseURI, n.Bucket, uint64(id))
}

func (n *Network) do(method string, id ID, body []byte) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, n.objectURL(id), rdr)
	if err != nil {
		return nil, err
	}
	n.Key.Sign(req, body)
	return n.Client.Do(req)
}

func (n *Network) SwapOut(id ID, bytes []byte, prepend bool) error {
	if prepend {
		existing, err := n.get(id)
		if err != nil && err != ErrNotFound {
			return err
		}
		bytes = append(append([]byte(nil), bytes...), existing...)
	}
	resp, err := n.do(http.MethodPut, id, bytes)
	if err != nil {
		return fmt.Errorf("backend: network: PUT span %d: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("backend: network: PUT span %d: status %s", id, resp.Status)
	}
	return nil
}

func (n *Network) get(id ID) ([]byte, error) {
	resp, err := n.do(http.MethodGet, id, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: network: GET span %d: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("backend: network: GET span %d: status %s", id, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (n *Network) SwapIn(id ID) ([]byte, error) {
	b, err := n.get(id)
	if err != nil {
		return nil, err
	}
	resp, err := n.do(http.MethodDelete, id, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: network: DELETE span %d: %w", id, err)
	}
	resp.Body.Close()
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return nil, fmt.Errorf("backend: network: DELETE span %d: status %s", id, resp.Status)
	}
	return b, nil
}

func (n *Network) Batch(outs []SwapOutOp, inID *ID) ([]byte, error) {
	return DefaultBatch(n, outs, inID)
}
