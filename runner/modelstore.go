/*
 * Copyright Morpheo Org. 2017
 * 
 * contact@morpheo.co
 * 
 * This software is part of the Morpheo project, an open-source machine
 * learning platform.
 * 
 * This software is governed by the CeCILL license, compatible with the
 * GNU GPL, under French law and abiding by the rules of distribution of
 * free software. You can  use, modify and/ or redistribute the software
 * under the terms of the CeCILL license as circulated by CEA, CNRS and
 * INRIA at the following URL "http://www.cecill.info".
 * 
 * As a counterpart to the access to the source code and  rights to copy,
 * modify and redistribute granted by the license, users are provided only
 * with a limited warranty  and the software's author,  the holder of the
 * economic rights,  and the successive licensors  have only  limited
 * liability.
 * 
 * In this respect, the user's attention is drawn to the risks associated
 * with loading,  using,  modifying and/or developing or reproducing the
 * software by the user in light of its specific status of free software,
 * that may mean  that it is complicated to manipulate,  and  that  also
 * therefore means  that it is reserved for developers  and  experienced
 * professionals having in-depth computer knowledge. Users are therefore
 * encouraged to load and test the software's suitability as regards their
 * requirements in conditions enabling the security of their systems and/or
 * data to be ensured and,  more generally, to use and operate it in the
 * same conditions as regards security.
 * 
 * The fact that you are presently reading this means that you have had
 * knowledge of the CeCILL license and that you accept its terms.
 */

package runner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// ModelStore is the only channel successive tasks communicate through: model blobs go in, keys
// come out, and a key always resolves to the full blob or to nothing (never to a torn write).
type ModelStore interface {
	// Load returns the model blob living under the given key
	Load(key string) ([]byte, error)

	// Save persists the model blob and returns the key it now lives under
	Save(blob []byte) (key string, err error)
}

// BlobModelStore stores model blobs in a BlobStore under content-addressed keys (hex-encoded
// SHA256 of the blob). Concurrent writers can't collide: identical content converges on one key,
// different content lands on different keys.
type BlobModelStore struct {
	Blobs  common.BlobStore
	Prefix string
}

// NewBlobModelStore creates a model store on top of the given blob store. Keys are namespaced
// under the "model" prefix.
func NewBlobModelStore(blobs common.BlobStore) *BlobModelStore {
	return &BlobModelStore{
		Blobs:  blobs,
		Prefix: "model",
	}
}

func (s *BlobModelStore) blobKey(key string) string {
	return fmt.Sprintf("%s/%s", s.Prefix, key)
}

// Load returns the model blob living under the given key. A key nothing lives under is a missing
// input; anything else going wrong on the way is a storage failure.
func (s *BlobModelStore) Load(key string) ([]byte, error) {
	reader, err := s.Blobs.Get(s.blobKey(key))
	if err != nil {
		if errors.Is(err, common.ErrBlobNotFound) {
			return nil, common.NewMissingInputError(key, err)
		}
		return nil, common.NewStorageError(fmt.Sprintf("Error retrieving model %s", key), err)
	}
	defer reader.Close()

	blob, err := io.ReadAll(reader)
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Error reading model %s", key), err)
	}
	return blob, nil
}

// Save persists the model blob under its content address and returns the key
func (s *BlobModelStore) Save(blob []byte) (key string, err error) {
	sum := sha256.Sum256(blob)
	key = hex.EncodeToString(sum[:])

	err = s.Blobs.Put(s.blobKey(key), bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Error persisting model %s", key), err)
	}
	return key, nil
}
