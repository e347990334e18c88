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

package client

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uuid "github.com/satori/go.uuid"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

func TestStorageModelStoreRoundTrip(t *testing.T) {
	store := &StorageModelStore{Storage: NewStorageAPIMock(), AlgoName: "centroid"}

	blob := []byte("model-bytes")
	key, err := store.Save(blob)
	require.NoError(t, err)

	sum := sha256.Sum256(blob)
	assert.Equal(t, hex.EncodeToString(sum[:]), key)

	loaded, err := store.Load(key)
	require.NoError(t, err)
	assert.Equal(t, blob, loaded)
}

func TestStorageModelStoreLoadAbsent(t *testing.T) {
	mock := NewStorageAPIMock()
	store := &StorageModelStore{Storage: mock, AlgoName: "centroid"}

	_, err := store.Load(mock.EvilModelKey)
	require.Error(t, err)
	assert.Equal(t, common.ExitMissingInput, common.ExitCode(err))
}

func TestStorageAPIMockData(t *testing.T) {
	mock := NewStorageAPIMock()

	reader, err := mock.GetDataBlob(uuid.NewV4())
	require.NoError(t, err)
	defer reader.Close()
	csv, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "label")

	evil, _ := uuid.FromString(mock.EvilDataUUID)
	_, err = mock.GetDataBlob(evil)
	assert.Equal(t, common.ErrBlobNotFound, err)
}
