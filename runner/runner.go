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
	"log"
	"strconv"
	"strings"

	"github.com/MorpheoOrg/morpheo-algorunner/algo"
	"github.com/MorpheoOrg/morpheo-algorunner/common"
	"github.com/MorpheoOrg/morpheo-algorunner/opener"
)

// Runner translates one task descriptor into one call against the operation contract: validate,
// load every declared input, run exactly one operation, persist the declared outputs. It never
// retries: whether a failure is transient is the orchestrator's call, not ours.
type Runner struct {
	Opener  opener.Opener
	Store   ModelStore
	Metrics MetricsReporter
}

// NewRunner creates a Runner wired to the given collaborators
func NewRunner(dataOpener opener.Opener, store ModelStore, metrics MetricsReporter) *Runner {
	return &Runner{
		Opener:  dataOpener,
		Store:   store,
		Metrics: metrics,
	}
}

// Result collects what one task produced. Artifacts are already persisted when Run returns it;
// the in-memory copies are kept for callers (like the compute worker) that forward them.
type Result struct {
	ModelKey    string
	Predictions algo.Predictions
	Metrics     algo.Metrics
}

// Run executes one task from descriptor to persisted outputs. On failure nothing has been
// written: a task killed or errored mid-flight is equivalent to a task that never ran.
func (r *Runner) Run(task *common.TaskDescriptor) (*Result, error) {
	// Validation: nothing is read or written past a bad descriptor
	if err := task.Check(); err != nil {
		return nil, err
	}

	impl, err := algo.Get(task.Algo)
	if err != nil {
		return nil, common.NewInvalidTaskError(err.Error())
	}

	// Load every declared input before producing any output
	data, err := r.loadData(task)
	if err != nil {
		return nil, err
	}
	models, err := r.loadModels(task, impl)
	if err != nil {
		return nil, err
	}

	params := algo.Params{
		Seed:  task.Seed,
		Rank:  task.Rank,
		Extra: task.Params,
	}

	var model algo.Model
	result := &Result{}

	switch task.Kind {
	case common.TaskTrain:
		trainer, ok := impl.(algo.Trainer)
		if !ok {
			return nil, common.NewInvalidTaskError(fmt.Sprintf("algorithm %s doesn't support train", task.Algo))
		}
		err = runOperation(common.TaskTrain, func() (opErr error) {
			model, opErr = trainer.Train(data, models, params)
			return opErr
		})
		if err != nil {
			return nil, err
		}

	case common.TaskPredict:
		predictor, ok := impl.(algo.Predictor)
		if !ok {
			return nil, common.NewInvalidTaskError(fmt.Sprintf("algorithm %s doesn't support predict", task.Algo))
		}
		err = runOperation(common.TaskPredict, func() (opErr error) {
			result.Predictions, opErr = predictor.Predict(data, models[0])
			return opErr
		})
		if err != nil {
			return nil, err
		}
		if len(result.Predictions) != data.Len() {
			return nil, common.NewShapeMismatchError(data.Len(), len(result.Predictions))
		}

		if task.MetricsOut != "" {
			evaluator, ok := impl.(algo.Evaluator)
			if !ok {
				return nil, common.NewInvalidTaskError(fmt.Sprintf("metrics output declared but algorithm %s doesn't support evaluate", task.Algo))
			}
			if !data.Labeled() {
				log.Printf("[WARNING][runner] Task %s: metrics output declared but the dataset carries no labels, skipping evaluation", task.ID)
			} else {
				err = runOperation("evaluate", func() (opErr error) {
					result.Metrics, opErr = evaluator.Evaluate(result.Predictions, data)
					return opErr
				})
				if err != nil {
					return nil, err
				}
			}
		}

	case common.TaskAggregate:
		aggregator, ok := impl.(algo.Aggregator)
		if !ok {
			return nil, common.NewInvalidTaskError(fmt.Sprintf("algorithm %s doesn't support aggregate", task.Algo))
		}
		err = runOperation(common.TaskAggregate, func() (opErr error) {
			model, opErr = aggregator.Aggregate(models)
			return opErr
		})
		if err != nil {
			return nil, err
		}
	}

	// Persist the declared outputs: the model blob goes to the store first (a crash between
	// writes leaves at worst an unreferenced blob behind, never a dangling key), then every file
	// output is staged and only renamed into place once all of them are ready, so a failing
	// write leaves no partial output behind
	outputs := newOutputBatch()
	defer outputs.discard()

	if model != nil {
		blob, err := model.Serialize()
		if err != nil {
			return nil, common.NewOperationFailedError("serialize", err)
		}
		result.ModelKey, err = r.Store.Save(blob)
		if err != nil {
			return nil, err
		}
		if err = outputs.stage(task.ModelKeyOut, []byte(result.ModelKey+"\n")); err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Error writing model key to %s", task.ModelKeyOut), err)
		}
	}

	if result.Predictions != nil {
		if err = outputs.stage(task.PredictionsOut, formatPredictions(result.Predictions)); err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Error writing predictions to %s", task.PredictionsOut), err)
		}
	}

	if result.Metrics != nil {
		staged, err := outputs.stagePath(task.MetricsOut)
		if err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Error writing metrics to %s", task.MetricsOut), err)
		}
		if err = r.Metrics.Write(staged, result.Metrics); err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Error writing metrics to %s", task.MetricsOut), err)
		}
	}

	if err = outputs.commit(); err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Error publishing outputs for task %s", task.ID), err)
	}

	if result.ModelKey != "" {
		log.Printf("[INFO][runner] Task %s: model persisted under key %s", task.ID, result.ModelKey)
	}
	if result.Predictions != nil {
		log.Printf("[INFO][runner] Task %s: %d predictions written to %s", task.ID, len(result.Predictions), task.PredictionsOut)
	}
	if result.Metrics != nil {
		log.Printf("[INFO][runner] Task %s: metrics written to %s", task.ID, task.MetricsOut)
	}

	return result, nil
}

// loadData opens and merges the declared dataset partitions
func (r *Runner) loadData(task *common.TaskDescriptor) (data algo.Dataset, err error) {
	if len(task.DataPaths) == 0 {
		return data, nil
	}

	parts := make([]algo.Dataset, 0, len(task.DataPaths))
	for _, path := range task.DataPaths {
		part, err := r.Opener.Open(path)
		if err != nil {
			return data, common.NewMissingInputError(path, err)
		}
		parts = append(parts, part)
	}

	data, err = algo.Merge(parts...)
	if err != nil {
		return data, common.NewMissingInputError(strings.Join(task.DataPaths, ","), err)
	}
	return data, nil
}

// loadModels resolves and rehydrates the declared prior models, in declaration order
func (r *Runner) loadModels(task *common.TaskDescriptor, impl algo.Algo) ([]algo.Model, error) {
	if len(task.ModelKeys) == 0 {
		return nil, nil
	}

	models := make([]algo.Model, 0, len(task.ModelKeys))
	for _, key := range task.ModelKeys {
		blob, err := r.Store.Load(key)
		if err != nil {
			return nil, err
		}
		model, err := impl.Deserialize(blob)
		if err != nil {
			return nil, common.NewOperationFailedError("deserialize", fmt.Errorf("model %s: %s", key, err))
		}
		models = append(models, model)
	}
	return models, nil
}

// runOperation funnels everything that can come out of an operation implementation into the error
// taxonomy: algorithm-level errors keep their type, anything else (panics included) becomes an
// OperationFailed with the cause attached.
func runOperation(stage string, op func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = common.NewOperationFailedError(stage, fmt.Errorf("panic: %v", rec))
		}
	}()

	err = op()
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *common.TrainingError, *common.PredictionError, *common.ShapeMismatchError:
		return err
	default:
		return common.NewOperationFailedError(stage, err)
	}
}

func formatPredictions(preds algo.Predictions) []byte {
	var b strings.Builder
	b.WriteString("pred\n")
	for _, pred := range preds {
		b.WriteString(strconv.FormatFloat(pred, 'g', -1, 64))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
