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
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalBlobStore is a BlobStore implementation that stores data on the local hard drive
type LocalBlobStore struct {
	DataDir string
}

// NewLocalBlobStore creates a new local Blobstore given a data directory
func NewLocalBlobStore(dataDir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("Error creating blob store directory %s: %s", dataDir, err)
	}
	return &LocalBlobStore{
		DataDir: dataDir,
	}, nil
}

// Put writes a file in the data directory (and creates necessary sub-directories if there are
// forward slashes in the key name). The blob is staged under a temporary name and renamed into
// place so that a concurrent Get never observes a torn write.
func (s *LocalBlobStore) Put(key string, data io.Reader, size int64) error {
	datapath := filepath.Join(s.DataDir, key)

	parent := filepath.Dir(datapath)
	_, err := os.Stat(parent)
	if os.IsNotExist(err) {
		err := os.MkdirAll(parent, 0755)
		if err != nil {
			return err
		}
	}

	tmpfile, err := os.CreateTemp(parent, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmpfile.Name())

	if _, err = io.Copy(tmpfile, data); err != nil {
		tmpfile.Close()
		return err
	}
	if err = tmpfile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpfile.Name(), datapath)
}

// Get returns an io.ReadCloser on the data living under the provided key. The retriever must
// explicitely call the Close() method on it when he's done reading.
func (s *LocalBlobStore) Get(key string) (data io.ReadCloser, err error) {
	datapath := filepath.Join(s.DataDir, key)
	file, err := os.Open(datapath)
	if os.IsNotExist(err) {
		return nil, ErrBlobNotFound
	}
	return file, err
}

// Rename moves a blob from one key to another
func (s *LocalBlobStore) Rename(oldKey, newKey string) error {
	newpath := filepath.Join(s.DataDir, newKey)
	if err := os.MkdirAll(filepath.Dir(newpath), 0755); err != nil {
		return err
	}
	err := os.Rename(filepath.Join(s.DataDir, oldKey), newpath)
	if os.IsNotExist(err) {
		return ErrBlobNotFound
	}
	return err
}

// Delete removes the blob living under the provided key
func (s *LocalBlobStore) Delete(key string) error {
	err := os.Remove(filepath.Join(s.DataDir, key))
	if os.IsNotExist(err) {
		return ErrBlobNotFound
	}
	return err
}
