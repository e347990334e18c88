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

package common

import (
	"bytes"
	"io"
	"sync"
)

// MemBlobStore is an in-memory BlobStore (for tests & local dev. purposes)
type MemBlobStore struct {
	sync.RWMutex

	blobs map[string][]byte
}

// NewMemBlobStore creates an empty in-memory blob store
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{
		blobs: map[string][]byte{},
	}
}

// Put buffers the whole blob in memory under the given key
func (s *MemBlobStore) Put(key string, data io.Reader, size int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	s.blobs[key] = buf
	return nil
}

// Get returns a reader on the blob living under the provided key
func (s *MemBlobStore) Get(key string) (data io.ReadCloser, err error) {
	s.RLock()
	defer s.RUnlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

// Rename moves a blob from one key to another
func (s *MemBlobStore) Rename(oldKey, newKey string) error {
	s.Lock()
	defer s.Unlock()
	blob, ok := s.blobs[oldKey]
	if !ok {
		return ErrBlobNotFound
	}
	s.blobs[newKey] = blob
	delete(s.blobs, oldKey)
	return nil
}

// Delete removes the blob living under the provided key
func (s *MemBlobStore) Delete(key string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}
