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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MorpheoOrg/morpheo-algorunner/algo"
)

// MetricsReporter writes structured performance numbers for the orchestrator to collect.
type MetricsReporter interface {
	Write(path string, metrics algo.Metrics) error
}

// JSONMetricsReporter writes the performance mapping as a JSON file (the performance.json
// convention), atomically.
type JSONMetricsReporter struct{}

// NewJSONMetricsReporter creates a JSONMetricsReporter
func NewJSONMetricsReporter() *JSONMetricsReporter {
	return &JSONMetricsReporter{}
}

// Write persists the metrics mapping at the given path
func (r *JSONMetricsReporter) Write(path string, metrics algo.Metrics) error {
	blob, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return fmt.Errorf("Error marshaling metrics to JSON: %s", err)
	}
	return writeFileAtomic(path, append(blob, '\n'))
}

// writeFileAtomic stages the content under a temporary name in the destination directory and
// renames it into place, so that a killed task never leaves a partial output behind.
func writeFileAtomic(path string, blob []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("Error creating output directory %s: %s", dir, err)
	}

	tmpfile, err := os.CreateTemp(dir, ".out-*")
	if err != nil {
		return fmt.Errorf("Error staging output file for %s: %s", path, err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err = tmpfile.Write(blob); err != nil {
		tmpfile.Close()
		return fmt.Errorf("Error writing staged output for %s: %s", path, err)
	}
	if err = tmpfile.Close(); err != nil {
		return fmt.Errorf("Error closing staged output for %s: %s", path, err)
	}
	if err = os.Rename(tmpfile.Name(), path); err != nil {
		return fmt.Errorf("Error moving output into place at %s: %s", path, err)
	}
	return nil
}
