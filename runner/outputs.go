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
	"fmt"
	"os"
	"path/filepath"
)

// outputBatch stages file outputs under temporary names and renames them into place in one final
// pass. A task that fails while producing any artifact therefore leaves none of them behind: the
// commit is the only point where outputs become visible.
type outputBatch struct {
	files []stagedFile
}

type stagedFile struct {
	tmp  string
	path string
}

func newOutputBatch() *outputBatch {
	return &outputBatch{}
}

// stage writes blob under a temporary name next to its final path
func (b *outputBatch) stage(path string, blob []byte) error {
	tmp, err := b.stagePath(path)
	if err != nil {
		return err
	}
	if err = os.WriteFile(tmp, blob, 0644); err != nil {
		return fmt.Errorf("Error writing staged output for %s: %s", path, err)
	}
	return nil
}

// stagePath reserves a temporary file next to path and returns its name, for producers that write
// the staged content themselves
func (b *outputBatch) stagePath(path string) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("Error creating output directory %s: %s", dir, err)
	}
	tmpfile, err := os.CreateTemp(dir, ".out-*")
	if err != nil {
		return "", fmt.Errorf("Error staging output file for %s: %s", path, err)
	}
	tmpfile.Close()
	b.files = append(b.files, stagedFile{tmp: tmpfile.Name(), path: path})
	return tmpfile.Name(), nil
}

// commit renames every staged file into place. If a rename fails, the outputs already moved are
// removed again, keeping the all-or-nothing contract.
func (b *outputBatch) commit() error {
	for n, f := range b.files {
		if err := os.Rename(f.tmp, f.path); err != nil {
			for _, done := range b.files[:n] {
				os.Remove(done.path)
			}
			return fmt.Errorf("Error moving output into place at %s: %s", f.path, err)
		}
	}
	b.files = nil
	return nil
}

// discard removes whatever was staged but never committed
func (b *outputBatch) discard() {
	for _, f := range b.files {
		os.Remove(f.tmp)
	}
	b.files = nil
}
