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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlobStore(t *testing.T, store BlobStore) {
	t.Helper()

	blob := []byte("not quite a neural network")
	require.NoError(t, store.Put("model-a", bytes.NewReader(blob), int64(len(blob))))

	reader, err := store.Get("model-a")
	require.NoError(t, err)
	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, blob, got)

	// Put on the same key overwrites
	require.NoError(t, store.Put("model-a", strings.NewReader("v2"), 2))
	reader, err = store.Get("model-a")
	require.NoError(t, err)
	got, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, store.Rename("model-a", "model-b"))
	_, err = store.Get("model-a")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	reader, err = store.Get("model-b")
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	require.NoError(t, store.Delete("model-b"))
	_, err = store.Get("model-b")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestLocalBlobStore(t *testing.T) {
	store, err := NewLocalBlobStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	testBlobStore(t, store)
}

func TestMemBlobStore(t *testing.T) {
	testBlobStore(t, NewMemBlobStore())
}

func TestLocalBlobStoreGetAbsent(t *testing.T) {
	store, err := NewLocalBlobStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("never-put")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorIs(t, store.Rename("never-put", "elsewhere"), ErrBlobNotFound)
	assert.ErrorIs(t, store.Delete("never-put"), ErrBlobNotFound)
}

func TestLocalBlobStorePutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Put("model-a", strings.NewReader("blob"), 4))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "model-a", entries[0].Name())
}
