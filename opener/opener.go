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

package opener

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MorpheoOrg/morpheo-algorunner/algo"
)

// Opener abstracts the way dataset partitions are loaded from an opaque local path into the
// in-memory representation the algorithm works on. The collaborator behind it (local files,
// mounted sandbox volume...) is of no concern to the task runner.
type Opener interface {
	Open(path string) (algo.Dataset, error)
}

// DefaultLabelColumn is the header name of the column holding labels in CSV partitions
const DefaultLabelColumn = "label"

// CSVOpener reads numeric CSV partitions: one header row, then one record per line. The column
// whose header matches LabelColumn feeds the label sequence; partitions without such a column are
// unlabeled. Every other column is a feature, in file order.
type CSVOpener struct {
	LabelColumn string
}

// NewCSVOpener creates a CSVOpener with the default label column name
func NewCSVOpener() *CSVOpener {
	return &CSVOpener{LabelColumn: DefaultLabelColumn}
}

// Open loads the partition living at the given path
func (o *CSVOpener) Open(path string) (data algo.Dataset, err error) {
	file, err := os.Open(path)
	if err != nil {
		return data, fmt.Errorf("Error opening dataset partition %s: %s", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return data, fmt.Errorf("Error reading header of dataset partition %s: %s", path, err)
	}

	labelCol := -1
	for n, name := range header {
		if name == o.LabelColumn {
			labelCol = n
			break
		}
	}
	if labelCol >= 0 {
		data.Labels = []float64{}
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return algo.Dataset{}, fmt.Errorf("Error reading dataset partition %s at line %d: %s", path, line, err)
		}

		features := make([]float64, 0, len(record))
		for n, field := range record {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return algo.Dataset{}, fmt.Errorf("Error parsing field %s of %s at line %d: %s", header[n], path, line, err)
			}
			if n == labelCol {
				data.Labels = append(data.Labels, value)
				continue
			}
			features = append(features, value)
		}
		data.Features = append(data.Features, features)
	}

	if data.Len() == 0 {
		return algo.Dataset{}, fmt.Errorf("Dataset partition %s is empty", path)
	}

	return data, nil
}

// MemOpener serves fixed in-memory partitions (for tests & local dev. purposes)
type MemOpener struct {
	Partitions map[string]algo.Dataset
}

// NewMemOpener creates an empty MemOpener
func NewMemOpener() *MemOpener {
	return &MemOpener{Partitions: map[string]algo.Dataset{}}
}

// Open returns the partition registered under the given path
func (o *MemOpener) Open(path string) (algo.Dataset, error) {
	data, ok := o.Partitions[path]
	if !ok {
		return algo.Dataset{}, fmt.Errorf("no partition registered under path %s", path)
	}
	return data, nil
}
