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

package algo

import (
	"fmt"
)

// Dataset is one data partition: an ordered sequence of feature records, plus an aligned sequence
// of labels when the partition is labeled. The runner holds a read-only reference to it for the
// duration of one task.
type Dataset struct {
	Features [][]float64
	Labels   []float64
}

// Len returns the number of records in the partition
func (d Dataset) Len() int {
	return len(d.Features)
}

// Labeled returns true when the partition carries labels
func (d Dataset) Labeled() bool {
	return d.Labels != nil
}

// Check returns nil if the dataset is structurally sound, an explicit error otherwise
func (d Dataset) Check() (err error) {
	if d.Len() == 0 {
		return fmt.Errorf("dataset is empty")
	}

	width := len(d.Features[0])
	for n, record := range d.Features {
		if len(record) != width {
			return fmt.Errorf("ragged feature record at pos %d: %d columns, expected %d", n, len(record), width)
		}
	}

	if d.Labeled() && len(d.Labels) != d.Len() {
		return fmt.Errorf("label/feature count mismatch: %d labels for %d records", len(d.Labels), d.Len())
	}

	return nil
}

// Merge concatenates several partitions into one, preserving record order. Partitions must agree
// on being labeled or not.
func Merge(parts ...Dataset) (merged Dataset, err error) {
	if len(parts) == 0 {
		return merged, fmt.Errorf("no partition to merge")
	}

	labeled := parts[0].Labeled()
	for n, part := range parts {
		if part.Labeled() != labeled {
			return merged, fmt.Errorf("partition at pos %d mixes labeled and unlabeled data", n)
		}
		merged.Features = append(merged.Features, part.Features...)
		if labeled {
			merged.Labels = append(merged.Labels, part.Labels...)
		}
	}
	return merged, nil
}

// Predictions is an ordered sequence aligned 1:1 with the records of the dataset partition it was
// predicted on.
type Predictions []float64

// Metrics maps metric names to their numeric values.
type Metrics map[string]float64

// Params carries the task-level knobs an operation runs under. The seed is explicit configuration,
// not ambient global state, so that determinism stays testable. Extra holds opaque
// hyper-parameters passed through from the invocation unmodified.
type Params struct {
	Seed  int64
	Rank  int
	Extra map[string]string
}

// Model is an opaque blob of learned state. The serialization format belongs to the algorithm;
// the only contract is that Deserialize(Serialize(m)) behaves like m.
type Model interface {
	Serialize() ([]byte, error)
}

// Algo is the capability set shared by every algorithm: a name to register under and the ability
// to rehydrate its own model blobs. Concrete algorithms implement whichever operation subset they
// support (Trainer, Predictor, Aggregator, Evaluator).
type Algo interface {
	Name() string
	Deserialize(blob []byte) (Model, error)
}

// Trainer produces a new model from data and zero or more prior models.
type Trainer interface {
	Algo

	Train(data Dataset, priors []Model, params Params) (Model, error)
}

// Predictor produces one prediction per dataset record. It must not mutate the provided model.
type Predictor interface {
	Algo

	Predict(data Dataset, model Model) (Predictions, error)
}

// Aggregator combines N >= 1 partial models into one. Aggregation over a single model is the
// identity. OrderSensitive declares whether the input order may affect the result; when false,
// aggregation must be commutative.
type Aggregator interface {
	Algo

	Aggregate(models []Model) (Model, error)
	OrderSensitive() bool
}

// Evaluator computes performance metrics for predictions against a labeled dataset. Pure: no side
// effects besides the returned mapping.
type Evaluator interface {
	Algo

	Evaluate(preds Predictions, data Dataset) (Metrics, error)
}
