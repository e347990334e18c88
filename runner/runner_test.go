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

package runner_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MorpheoOrg/morpheo-algorunner/algo"
	"github.com/MorpheoOrg/morpheo-algorunner/common"
	"github.com/MorpheoOrg/morpheo-algorunner/opener"
	"github.com/MorpheoOrg/morpheo-algorunner/runner"
	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	trainCSV = "x,y,label\n0,0.25,0\n0.5,0,0\n0.25,0.5,0\n4,5,1\n5,6,1\n6,4,1\n"
	testCSV  = "x,y,label\n0.25,0,0\n5,5,1\n0,0.5,0\n"
)

type fixture struct {
	runner  *runner.Runner
	store   *runner.BlobModelStore
	workdir string
	train   string
	test    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	workdir := t.TempDir()

	train := filepath.Join(workdir, "train.csv")
	require.NoError(t, os.WriteFile(train, []byte(trainCSV), 0644))
	test := filepath.Join(workdir, "test.csv")
	require.NoError(t, os.WriteFile(test, []byte(testCSV), 0644))

	store := runner.NewBlobModelStore(common.NewMemBlobStore())
	return &fixture{
		runner:  runner.NewRunner(opener.NewCSVOpener(), store, runner.NewJSONMetricsReporter()),
		store:   store,
		workdir: workdir,
		train:   train,
		test:    test,
	}
}

func (f *fixture) out(name string) string {
	return filepath.Join(f.workdir, name)
}

func trainTask(f *fixture) *common.TaskDescriptor {
	return &common.TaskDescriptor{
		ID:          uuid.NewV4(),
		Kind:        common.TaskTrain,
		Algo:        "centroid",
		DataPaths:   []string{f.train},
		Seed:        42,
		ModelKeyOut: f.out("model.key"),
	}
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)

	// train on partition A
	trained, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)
	require.NotEmpty(t, trained.ModelKey)

	keyFile, err := os.ReadFile(f.out("model.key"))
	require.NoError(t, err)
	assert.Equal(t, trained.ModelKey, strings.TrimSpace(string(keyFile)))

	// predict on partition B with the stored model, evaluate on the way out
	predicted, err := f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{trained.ModelKey},
		PredictionsOut: f.out("pred.csv"),
		MetricsOut:     f.out("performance.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, algo.Predictions{0, 1, 0}, predicted.Predictions)

	predFile, err := os.ReadFile(f.out("pred.csv"))
	require.NoError(t, err)
	assert.Equal(t, "pred\n0\n1\n0\n", string(predFile))

	perfFile, err := os.ReadFile(f.out("performance.json"))
	require.NoError(t, err)
	perf := map[string]float64{}
	require.NoError(t, json.Unmarshal(perfFile, &perf))
	assert.Equal(t, 1.0, perf["all"])
	assert.Equal(t, 1.0, perf["accuracy"])
}

func TestTrainDeterminismThroughStore(t *testing.T) {
	f := newFixture(t)

	first, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)
	second, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)

	// Same seed, same data: content-addressed keys collapse to one
	assert.Equal(t, first.ModelKey, second.ModelKey)
}

func TestPredictLeavesStoredModelIntact(t *testing.T) {
	f := newFixture(t)

	trained, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)
	before, err := f.store.Load(trained.ModelKey)
	require.NoError(t, err)

	_, err = f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{trained.ModelKey},
		PredictionsOut: f.out("pred.csv"),
	})
	require.NoError(t, err)

	after, err := f.store.Load(trained.ModelKey)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestAggregateThroughStore(t *testing.T) {
	f := newFixture(t)

	trained, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)

	merged, err := f.runner.Run(&common.TaskDescriptor{
		ID:          uuid.NewV4(),
		Kind:        common.TaskAggregate,
		Algo:        "centroid",
		ModelKeys:   []string{trained.ModelKey, trained.ModelKey},
		ModelKeyOut: f.out("merged.key"),
	})
	require.NoError(t, err)

	// Aggregating a model with itself changes counts, not means: predictions must agree
	preds, err := f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{merged.ModelKey},
		PredictionsOut: f.out("pred.csv"),
	})
	require.NoError(t, err)
	assert.Equal(t, algo.Predictions{0, 1, 0}, preds.Predictions)
}

func TestInvalidTaskKind(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.Kind = "transmogrify"
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.Equal(t, common.ExitInvalidTask, common.ExitCode(err))
	assert.NoFileExists(t, f.out("model.key"))
}

func TestUnknownAlgo(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.Algo = "no-such-algo"
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.Equal(t, common.ExitInvalidTask, common.ExitCode(err))
}

func TestMissingModelKeyWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{"deadbeef"},
		PredictionsOut: f.out("pred.csv"),
	})
	require.Error(t, err)
	assert.Equal(t, common.ExitMissingInput, common.ExitCode(err))
	assert.NoFileExists(t, f.out("pred.csv"))
}

func TestMissingDatasetWritesNothing(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.DataPaths = []string{filepath.Join(f.workdir, "nowhere.csv")}
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.Equal(t, common.ExitMissingInput, common.ExitCode(err))
	assert.NoFileExists(t, f.out("model.key"))
}

func TestTrainingErrorOnMalformedData(t *testing.T) {
	f := newFixture(t)

	unlabeled := filepath.Join(f.workdir, "unlabeled.csv")
	require.NoError(t, os.WriteFile(unlabeled, []byte("x,y\n1,2\n"), 0644))

	task := trainTask(f)
	task.DataPaths = []string{unlabeled}
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.IsType(t, &common.TrainingError{}, err)
	assert.Equal(t, common.ExitOperationFailed, common.ExitCode(err))
	assert.NoFileExists(t, f.out("model.key"))
}

// shapeLiar predicts one value too few, on purpose
type shapeLiar struct {
	*algo.Centroid
}

func (s shapeLiar) Name() string {
	return "shape-liar"
}

func (s shapeLiar) Predict(data algo.Dataset, model algo.Model) (algo.Predictions, error) {
	preds, err := s.Centroid.Predict(data, model)
	if err != nil {
		return nil, err
	}
	return preds[:len(preds)-1], nil
}

// panicker blows up instead of training
type panicker struct {
	*algo.Centroid
}

func (p panicker) Name() string {
	return "panicker"
}

func (p panicker) Train(data algo.Dataset, priors []algo.Model, params algo.Params) (algo.Model, error) {
	panic("numerical instability")
}

func init() {
	algo.Register(shapeLiar{algo.NewCentroid()})
	algo.Register(panicker{algo.NewCentroid()})
}

func TestShapeMismatchDetected(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.Algo = "shape-liar"
	trained, err := f.runner.Run(task)
	require.NoError(t, err)

	_, err = f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "shape-liar",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{trained.ModelKey},
		PredictionsOut: f.out("pred.csv"),
	})
	require.Error(t, err)
	assert.Equal(t, common.ExitShapeMismatch, common.ExitCode(err))
	assert.NoFileExists(t, f.out("pred.csv"))
}

func TestPanicBecomesOperationFailed(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.Algo = "panicker"
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.IsType(t, &common.OperationFailedError{}, err)
	assert.Equal(t, common.ExitOperationFailed, common.ExitCode(err))
	assert.NoFileExists(t, f.out("model.key"))
}

// brokenReporter refuses to write any metrics file
type brokenReporter struct{}

func (brokenReporter) Write(path string, metrics algo.Metrics) error {
	return errors.New("no space left on device")
}

func TestMetricsWriteFailureLeavesNoOutputs(t *testing.T) {
	f := newFixture(t)

	trained, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)

	broken := runner.NewRunner(opener.NewCSVOpener(), f.store, brokenReporter{})
	_, err = broken.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{f.test},
		ModelKeys:      []string{trained.ModelKey},
		PredictionsOut: f.out("pred.csv"),
		MetricsOut:     f.out("performance.json"),
	})
	require.Error(t, err)
	assert.Equal(t, common.ExitStorage, common.ExitCode(err))

	// A failed task behaves like a task that never ran: no output, staged or final
	assert.NoFileExists(t, f.out("pred.csv"))
	assert.NoFileExists(t, f.out("performance.json"))
	leftovers, err := filepath.Glob(filepath.Join(f.workdir, ".out-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUnlabeledEvaluationSkipped(t *testing.T) {
	f := newFixture(t)

	trained, err := f.runner.Run(trainTask(f))
	require.NoError(t, err)

	unlabeled := filepath.Join(f.workdir, "unlabeled.csv")
	require.NoError(t, os.WriteFile(unlabeled, []byte("x,y\n0.25,0\n5,5\n"), 0644))

	result, err := f.runner.Run(&common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           common.TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{unlabeled},
		ModelKeys:      []string{trained.ModelKey},
		PredictionsOut: f.out("pred.csv"),
		MetricsOut:     f.out("performance.json"),
	})
	require.NoError(t, err)
	assert.Equal(t, algo.Predictions{0, 1}, result.Predictions)

	// Predictions land, the metrics file is skipped rather than failing the task
	assert.FileExists(t, f.out("pred.csv"))
	assert.NoFileExists(t, f.out("performance.json"))
}

func TestDescriptorOutputCoherence(t *testing.T) {
	f := newFixture(t)

	task := trainTask(f)
	task.MetricsOut = f.out("performance.json")
	_, err := f.runner.Run(task)
	require.Error(t, err)
	assert.Equal(t, common.ExitInvalidTask, common.ExitCode(err))
}
