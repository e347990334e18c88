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
	"encoding/json"
	"fmt"
	"sort"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

func init() {
	Register(NewCentroid())
}

// Centroid is the platform's reference algorithm: a nearest-centroid classifier. It exists so
// that the whole execution contract (train, predict, aggregate, evaluate) can be exercised
// end-to-end without shipping a real submission. Training is deterministic by construction, so
// the seed convention is honored trivially.
type Centroid struct{}

// NewCentroid creates a Centroid instance
func NewCentroid() *Centroid {
	return &Centroid{}
}

// Name returns the name the algorithm is registered under
func (c *Centroid) Name() string {
	return "centroid"
}

// CentroidModel is the learned state of the Centroid algorithm: one mean feature vector per
// class, plus the number of samples each mean was fitted on (needed for weighted aggregation).
// Classes are kept sorted so that serialization is canonical.
type CentroidModel struct {
	Classes []float64   `json:"classes"`
	Means   [][]float64 `json:"means"`
	Counts  []int64     `json:"counts"`
}

// Serialize marshals the model to its canonical JSON form
func (m *CentroidModel) Serialize() ([]byte, error) {
	return json.Marshal(m)
}

// Check returns nil if the model is structurally sound, an explicit error otherwise
func (m *CentroidModel) Check() (err error) {
	if len(m.Classes) == 0 {
		return fmt.Errorf("model has no class")
	}
	if len(m.Means) != len(m.Classes) || len(m.Counts) != len(m.Classes) {
		return fmt.Errorf("model field lengths don't line up (%d classes, %d means, %d counts)",
			len(m.Classes), len(m.Means), len(m.Counts))
	}

	width := len(m.Means[0])
	for n, mean := range m.Means {
		if len(mean) != width {
			return fmt.Errorf("ragged mean vector at pos %d: %d columns, expected %d", n, len(mean), width)
		}
	}

	for n, count := range m.Counts {
		if count <= 0 {
			return fmt.Errorf("non-positive sample count at pos %d", n)
		}
	}

	for n := 1; n < len(m.Classes); n++ {
		if m.Classes[n-1] >= m.Classes[n] {
			return fmt.Errorf("classes field ain't sorted at pos %d", n)
		}
	}

	return nil
}

func (m *CentroidModel) width() int {
	return len(m.Means[0])
}

// Deserialize rehydrates a model blob produced by Serialize
func (c *Centroid) Deserialize(blob []byte) (Model, error) {
	model := &CentroidModel{}
	if err := json.Unmarshal(blob, model); err != nil {
		return nil, fmt.Errorf("Error un-marshaling centroid model: %s", err)
	}
	if err := model.Check(); err != nil {
		return nil, fmt.Errorf("Error in centroid model blob: %s", err)
	}
	return model, nil
}

// Train fits one mean vector per class on the given partition. Prior models, when provided, are
// folded in by weighted aggregation (warm start), which keeps incremental federated rounds
// consistent with one-shot training on the union of the data.
func (c *Centroid) Train(data Dataset, priors []Model, params Params) (Model, error) {
	if err := data.Check(); err != nil {
		return nil, common.NewTrainingError(fmt.Sprintf("malformed training data: %s", err))
	}
	if !data.Labeled() {
		return nil, common.NewTrainingError("train requires a labeled partition")
	}

	sums := map[float64][]float64{}
	counts := map[float64]int64{}
	width := len(data.Features[0])

	for n, record := range data.Features {
		label := data.Labels[n]
		if _, seen := sums[label]; !seen {
			sums[label] = make([]float64, width)
		}
		for i, feature := range record {
			sums[label][i] += feature
		}
		counts[label]++
	}

	classes := make([]float64, 0, len(sums))
	for class := range sums {
		classes = append(classes, class)
	}
	sort.Float64s(classes)

	fitted := &CentroidModel{
		Classes: classes,
		Means:   make([][]float64, len(classes)),
		Counts:  make([]int64, len(classes)),
	}
	for n, class := range classes {
		mean := sums[class]
		for i := range mean {
			mean[i] /= float64(counts[class])
		}
		fitted.Means[n] = mean
		fitted.Counts[n] = counts[class]
	}

	if len(priors) == 0 {
		return fitted, nil
	}
	return c.Aggregate(append(append([]Model{}, priors...), fitted))
}

// Predict assigns each record the class of its nearest centroid (squared euclidean distance,
// ties broken towards the smallest class value). The provided model is never written to.
func (c *Centroid) Predict(data Dataset, model Model) (Predictions, error) {
	centroids, ok := model.(*CentroidModel)
	if !ok {
		return nil, common.NewPredictionError(fmt.Sprintf("model of type %T ain't a centroid model", model))
	}
	if err := data.Check(); err != nil {
		return nil, common.NewPredictionError(fmt.Sprintf("malformed prediction data: %s", err))
	}
	if len(data.Features[0]) != centroids.width() {
		return nil, common.NewPredictionError(fmt.Sprintf(
			"feature width mismatch: data has %d columns, model was fitted on %d", len(data.Features[0]), centroids.width()))
	}

	preds := make(Predictions, 0, data.Len())
	for _, record := range data.Features {
		best := 0
		bestDist := squaredDistance(record, centroids.Means[0])
		for n := 1; n < len(centroids.Means); n++ {
			if dist := squaredDistance(record, centroids.Means[n]); dist < bestDist {
				best = n
				bestDist = dist
			}
		}
		preds = append(preds, centroids.Classes[best])
	}
	return preds, nil
}

// Aggregate combines partial models by sample-count-weighted averaging of the per-class means.
// The operation is commutative: input order never affects the result beyond float rounding on
// three or more models.
func (c *Centroid) Aggregate(models []Model) (Model, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("aggregate requires at least one model")
	}

	partials := make([]*CentroidModel, len(models))
	width := -1
	for n, model := range models {
		partial, ok := model.(*CentroidModel)
		if !ok {
			return nil, fmt.Errorf("model at pos %d of type %T ain't a centroid model", n, model)
		}
		if width == -1 {
			width = partial.width()
		} else if partial.width() != width {
			return nil, fmt.Errorf("model at pos %d has %d columns, expected %d", n, partial.width(), width)
		}
		partials[n] = partial
	}

	// Single-model aggregation is the identity (modulo a defensive copy)
	if len(partials) == 1 {
		return clone(partials[0]), nil
	}

	sums := map[float64][]float64{}
	counts := map[float64]int64{}
	for _, partial := range partials {
		for n, class := range partial.Classes {
			if _, seen := sums[class]; !seen {
				sums[class] = make([]float64, width)
			}
			for i, mean := range partial.Means[n] {
				sums[class][i] += mean * float64(partial.Counts[n])
			}
			counts[class] += partial.Counts[n]
		}
	}

	classes := make([]float64, 0, len(sums))
	for class := range sums {
		classes = append(classes, class)
	}
	sort.Float64s(classes)

	merged := &CentroidModel{
		Classes: classes,
		Means:   make([][]float64, len(classes)),
		Counts:  make([]int64, len(classes)),
	}
	for n, class := range classes {
		mean := sums[class]
		for i := range mean {
			mean[i] /= float64(counts[class])
		}
		merged.Means[n] = mean
		merged.Counts[n] = counts[class]
	}
	return merged, nil
}

// OrderSensitive declares that aggregation is commutative
func (c *Centroid) OrderSensitive() bool {
	return false
}

// Evaluate computes classification accuracy. The "all" entry carries the headline figure the
// orchestrator collects, per the performance file convention.
func (c *Centroid) Evaluate(preds Predictions, data Dataset) (Metrics, error) {
	if !data.Labeled() {
		return nil, fmt.Errorf("evaluate requires a labeled partition")
	}
	if len(preds) != data.Len() {
		return nil, fmt.Errorf("prediction/record count mismatch: %d predictions for %d records", len(preds), data.Len())
	}

	hits := 0
	for n, pred := range preds {
		if pred == data.Labels[n] {
			hits++
		}
	}
	accuracy := float64(hits) / float64(data.Len())

	return Metrics{
		"accuracy": accuracy,
		"all":      accuracy,
	}, nil
}

func squaredDistance(a, b []float64) (dist float64) {
	for i := range a {
		delta := a[i] - b[i]
		dist += delta * delta
	}
	return dist
}

func clone(m *CentroidModel) *CentroidModel {
	copied := &CentroidModel{
		Classes: append([]float64{}, m.Classes...),
		Means:   make([][]float64, len(m.Means)),
		Counts:  append([]int64{}, m.Counts...),
	}
	for n, mean := range m.Means {
		copied.Means[n] = append([]float64{}, mean...)
	}
	return copied
}
