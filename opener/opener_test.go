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

package opener_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/MorpheoOrg/morpheo-algorunner/opener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePartition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpenLabeledPartition(t *testing.T) {
	path := writePartition(t, "train.csv", "x,y,label\n0.5,1.5,0\n2.5,3.5,1\n")

	data, err := opener.NewCSVOpener().Open(path)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0.5, 1.5}, {2.5, 3.5}}, data.Features)
	assert.Equal(t, []float64{0, 1}, data.Labels)
	assert.True(t, data.Labeled())
}

func TestOpenUnlabeledPartition(t *testing.T) {
	path := writePartition(t, "test.csv", "x,y\n0.5,1.5\n2.5,3.5\n")

	data, err := opener.NewCSVOpener().Open(path)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0.5, 1.5}, {2.5, 3.5}}, data.Features)
	assert.False(t, data.Labeled())
}

func TestOpenLabelColumnAnywhere(t *testing.T) {
	path := writePartition(t, "train.csv", "label,x,y\n1,0.5,1.5\n")

	data, err := opener.NewCSVOpener().Open(path)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0.5, 1.5}}, data.Features)
	assert.Equal(t, []float64{1}, data.Labels)
}

func TestOpenFailures(t *testing.T) {
	o := opener.NewCSVOpener()

	_, err := o.Open(filepath.Join(t.TempDir(), "nowhere.csv"))
	assert.Error(t, err)

	_, err = o.Open(writePartition(t, "garbage.csv", "x,y\nfoo,bar\n"))
	assert.Error(t, err)

	_, err = o.Open(writePartition(t, "empty.csv", "x,y\n"))
	assert.Error(t, err)
}
