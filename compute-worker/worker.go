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

package main

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/MorpheoOrg/morpheo-algorunner/algo"
	"github.com/MorpheoOrg/morpheo-algorunner/client"
	"github.com/MorpheoOrg/morpheo-algorunner/common"
	"github.com/MorpheoOrg/morpheo-algorunner/opener"
	"github.com/MorpheoOrg/morpheo-algorunner/runner"
	uuid "github.com/satori/go.uuid"
)

// Execution backends
const (
	ExecutionLocal  = "local"
	ExecutionDocker = "docker"
)

// Sandbox layout inside algorithm containers
const (
	sandboxDataFolder  = "/sandbox/data"
	sandboxModelFolder = "/sandbox/model"
	sandboxPredFolder  = "/sandbox/pred"
	modelFileName      = "model"
	predFileName       = "pred"
	perfFileName       = "perf.json"
)

// Worker consumes uplets from the broker and carefully walks each one through our task workflow:
// status update on the orchestrator, data and model staging, task execution, result upload and
// cleanup.
type Worker struct {
	// Worker configuration variables
	dataFolder      string
	execution       string
	algoImagePrefix string
	algoImageDir    string

	// ContainerRuntime abstraction (docker execution only)
	containerRuntime common.ContainerRuntime

	// API clients
	storage      client.Storage
	orchestrator client.Orchestrator
}

// NewWorker creates a Worker instance
func NewWorker(dataFolder, execution, algoImagePrefix, algoImageDir string, containerRuntime common.ContainerRuntime, storage client.Storage, orchestrator client.Orchestrator) *Worker {
	return &Worker{
		dataFolder:      dataFolder,
		execution:       execution,
		algoImagePrefix: algoImagePrefix,
		algoImageDir:    algoImageDir,

		containerRuntime: containerRuntime,
		storage:          storage,
		orchestrator:     orchestrator,
	}
}

// HandleLearn manages a learning task (orchestrator status updates, the learning workflow itself,
// perf upload)
func (w *Worker) HandleLearn(message []byte) (err error) {
	var task common.LearnUplet

	err = json.NewDecoder(bytes.NewReader(message)).Decode(&task)
	if err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error un-marshaling learn-uplet: %s -- Body: %s", err, message))
	}

	if err = task.Check(); err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error in train task: %s -- Body: %s", err, message))
	}

	w.orchestrator.UpdateUpletStatus(common.LearnUpletType, common.TaskStatusPending, task.ID)

	perfuplet, err := w.LearnWorkflow(task)
	if err != nil {
		w.orchestrator.UpdateUpletStatus(common.LearnUpletType, common.TaskStatusFailed, task.ID)
		return fmt.Errorf("Error in LearnWorkflow: %s", err)
	}

	if err = w.orchestrator.PostLearnResult(task.ID, perfuplet); err != nil {
		return fmt.Errorf("Error posting learn result for %s to orchestrator: %s", task.ID, err)
	}

	w.orchestrator.UpdateUpletStatus(common.LearnUpletType, common.TaskStatusDone, task.ID)
	return nil
}

// LearnWorkflow stages the datasets, trains a model, scores it on the train and test partitions
// and builds the perfuplet for the orchestrator
func (w *Worker) LearnWorkflow(task common.LearnUplet) (perfuplet client.Perfuplet, err error) {
	taskFolder := filepath.Join(w.dataFolder, task.ID.String())
	defer os.RemoveAll(taskFolder)

	trainFiles, err := w.stageData(filepath.Join(taskFolder, "data", "train"), task.TrainData)
	if err != nil {
		return perfuplet, err
	}
	testFiles, err := w.stageData(filepath.Join(taskFolder, "data", "test"), task.TestData)
	if err != nil {
		return perfuplet, err
	}

	var modelKeys []string
	if task.ModelStart != "" {
		modelKeys = []string{task.ModelStart}
	}

	result, err := w.runTask(taskFolder, &common.TaskDescriptor{
		ID:          task.ID,
		Kind:        common.TaskTrain,
		Algo:        task.Algo,
		DataPaths:   trainFiles,
		ModelKeys:   modelKeys,
		Rank:        task.Rank,
		Seed:        task.Seed,
		Params:      task.Params,
		ModelKeyOut: filepath.Join(taskFolder, "model", "key"),
	})
	if err != nil {
		return perfuplet, fmt.Errorf("Error in train task %s: %s", task.ID, err)
	}

	trainPerf, err := w.scoreModel(taskFolder, &task, result.ModelKey, trainFiles, "train")
	if err != nil {
		return perfuplet, err
	}
	perfuplet = client.Perfuplet{
		Status:    common.TaskStatusDone,
		ModelKey:  result.ModelKey,
		TrainPerf: trainPerf,
	}

	if len(testFiles) > 0 {
		testPerf, err := w.scoreModel(taskFolder, &task, result.ModelKey, testFiles, "test")
		if err != nil {
			return perfuplet, err
		}
		perfuplet.TestPerf = testPerf
		perfuplet.Perf = testPerf["all"]
	} else {
		perfuplet.Perf = trainPerf["all"]
	}

	log.Printf("[INFO] Train task %s finished with success, cleaning up...", task.ID)
	return perfuplet, nil
}

// HandlePred manages a prediction task
func (w *Worker) HandlePred(message []byte) (err error) {
	var task common.Preduplet

	err = json.NewDecoder(bytes.NewReader(message)).Decode(&task)
	if err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error un-marshaling pred-uplet: %s -- Body: %s", err, message))
	}

	if err = task.Check(); err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error in predict task: %s -- Body: %s", err, message))
	}

	w.orchestrator.UpdateUpletStatus(common.PredUpletType, common.TaskStatusPending, task.ID)

	preddone, err := w.PredWorkflow(task)
	if err != nil {
		w.orchestrator.UpdateUpletStatus(common.PredUpletType, common.TaskStatusFailed, task.ID)
		return fmt.Errorf("Error in PredWorkflow: %s", err)
	}

	if err = w.orchestrator.PostPredResult(task.ID, preddone); err != nil {
		return fmt.Errorf("Error posting pred result for %s to orchestrator: %s", task.ID, err)
	}

	w.orchestrator.UpdateUpletStatus(common.PredUpletType, common.TaskStatusDone, task.ID)
	return nil
}

// PredWorkflow stages the dataset, runs the prediction and uploads the prediction set to storage
func (w *Worker) PredWorkflow(task common.Preduplet) (preddone client.Preddone, err error) {
	taskFolder := filepath.Join(w.dataFolder, task.ID.String())
	defer os.RemoveAll(taskFolder)

	dataFiles, err := w.stageData(filepath.Join(taskFolder, "data", "pred"), task.Data)
	if err != nil {
		return preddone, err
	}

	predPath := filepath.Join(taskFolder, "pred", predFileName)
	_, err = w.runTask(taskFolder, &common.TaskDescriptor{
		ID:             task.ID,
		Kind:           common.TaskPredict,
		Algo:           task.Algo,
		DataPaths:      dataFiles,
		ModelKeys:      []string{task.Model},
		PredictionsOut: predPath,
	})
	if err != nil {
		return preddone, fmt.Errorf("Error in predict task %s: %s", task.ID, err)
	}

	predFile, err := os.Open(predPath)
	if err != nil {
		return preddone, fmt.Errorf("Error reading prediction file %s: %s", predPath, err)
	}
	defer predFile.Close()

	predInfo, err := predFile.Stat()
	if err != nil {
		return preddone, fmt.Errorf("Error stat-ing prediction file %s: %s", predPath, err)
	}

	predictionID := uuid.NewV4()
	err = w.storage.PostPredictionBlob(predictionID, task.Model, predFile, predInfo.Size())
	if err != nil {
		return preddone, fmt.Errorf("Error streaming prediction %s to storage: %s", predictionID, err)
	}

	log.Printf("[INFO] Predict task %s finished with success, cleaning up...", task.ID)
	return client.Preddone{
		Status:         common.TaskStatusDone,
		PredictionUUID: predictionID,
	}, nil
}

// HandleAgg manages an aggregation task
func (w *Worker) HandleAgg(message []byte) (err error) {
	var task common.AggUplet

	err = json.NewDecoder(bytes.NewReader(message)).Decode(&task)
	if err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error un-marshaling agg-uplet: %s -- Body: %s", err, message))
	}

	if err = task.Check(); err != nil {
		return common.NewHandlerFatalError(fmt.Errorf("Error in aggregate task: %s -- Body: %s", err, message))
	}

	w.orchestrator.UpdateUpletStatus(common.AggUpletType, common.TaskStatusPending, task.ID)

	perfuplet, err := w.AggWorkflow(task)
	if err != nil {
		w.orchestrator.UpdateUpletStatus(common.AggUpletType, common.TaskStatusFailed, task.ID)
		return fmt.Errorf("Error in AggWorkflow: %s", err)
	}

	if err = w.orchestrator.PostAggResult(task.ID, perfuplet); err != nil {
		return fmt.Errorf("Error posting agg result for %s to orchestrator: %s", task.ID, err)
	}

	w.orchestrator.UpdateUpletStatus(common.AggUpletType, common.TaskStatusDone, task.ID)
	return nil
}

// AggWorkflow combines the input models into one and reports the new model key
func (w *Worker) AggWorkflow(task common.AggUplet) (perfuplet client.Perfuplet, err error) {
	taskFolder := filepath.Join(w.dataFolder, task.ID.String())
	defer os.RemoveAll(taskFolder)

	result, err := w.runTask(taskFolder, &common.TaskDescriptor{
		ID:          task.ID,
		Kind:        common.TaskAggregate,
		Algo:        task.Algo,
		ModelKeys:   task.Models,
		Rank:        task.Rank,
		ModelKeyOut: filepath.Join(taskFolder, "model", "key"),
	})
	if err != nil {
		return perfuplet, fmt.Errorf("Error in aggregate task %s: %s", task.ID, err)
	}

	log.Printf("[INFO] Aggregate task %s finished with success, cleaning up...", task.ID)
	return client.Perfuplet{
		Status:   common.TaskStatusDone,
		ModelKey: result.ModelKey,
	}, nil
}

// scoreModel predicts on the given partition with the freshly produced model and returns the
// resulting perf mapping
func (w *Worker) scoreModel(taskFolder string, task *common.LearnUplet, modelKey string, dataFiles []string, partition string) (map[string]float64, error) {
	result, err := w.runTask(taskFolder, &common.TaskDescriptor{
		ID:             task.ID,
		Kind:           common.TaskPredict,
		Algo:           task.Algo,
		DataPaths:      dataFiles,
		ModelKeys:      []string{modelKey},
		PredictionsOut: filepath.Join(taskFolder, "pred", partition+"_"+predFileName),
		MetricsOut:     filepath.Join(taskFolder, "pred", partition+"_"+perfFileName),
	})
	if err != nil {
		return nil, fmt.Errorf("Error scoring model %s on %s partition: %s", modelKey, partition, err)
	}
	return result.Metrics, nil
}

// stageData pulls dataset partitions from storage and writes them under the given folder
func (w *Worker) stageData(folder string, dataIDs []uuid.UUID) (paths []string, err error) {
	if len(dataIDs) == 0 {
		return nil, nil
	}
	if err = os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("Error creating data folder %s: %s", folder, err)
	}

	for _, dataID := range dataIDs {
		data, err := w.storage.GetDataBlob(dataID)
		if err != nil {
			return nil, fmt.Errorf("Error pulling dataset %s from storage: %s", dataID, err)
		}
		path := filepath.Join(folder, dataID.String()+".csv")
		dataFile, err := os.Create(path)
		if err != nil {
			data.Close()
			return nil, fmt.Errorf("Error creating file %s: %s", path, err)
		}
		n, err := io.Copy(dataFile, data)
		dataFile.Close()
		data.Close()
		if err != nil {
			return nil, fmt.Errorf("Error copying data file %s (%d bytes written): %s", path, n, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// runTask executes one task, either in-process through the runner or inside the algorithm's own
// container image
func (w *Worker) runTask(taskFolder string, task *common.TaskDescriptor) (*runner.Result, error) {
	if w.execution == ExecutionDocker {
		return w.runTaskInContainer(taskFolder, task)
	}

	taskRunner := runner.NewRunner(
		opener.NewCSVOpener(),
		&client.StorageModelStore{Storage: w.storage, AlgoName: task.Algo},
		runner.NewJSONMetricsReporter(),
	)
	return taskRunner.Run(task)
}

// runTaskInContainer stages the input models on disk, runs the algorithm image against the sandbox
// volume layout and pushes the produced artifacts back to storage
func (w *Worker) runTaskInContainer(taskFolder string, task *common.TaskDescriptor) (*runner.Result, error) {
	if err := task.Check(); err != nil {
		return nil, err
	}

	dataFolder := filepath.Join(taskFolder, "data")
	modelFolder := filepath.Join(taskFolder, "model")
	predFolder := filepath.Join(taskFolder, "pred")
	for _, folder := range []string{dataFolder, modelFolder, predFolder} {
		if err := os.MkdirAll(folder, 0755); err != nil {
			return nil, fmt.Errorf("Error creating sandbox folder %s: %s", folder, err)
		}
	}

	for _, key := range task.ModelKeys {
		modelBlob, err := w.storage.GetModelBlob(key)
		if err != nil {
			return nil, common.NewMissingInputError(fmt.Sprintf("model %s", key), err)
		}
		modelFile, err := os.Create(filepath.Join(modelFolder, key))
		if err != nil {
			modelBlob.Close()
			return nil, fmt.Errorf("Error staging model %s: %s", key, err)
		}
		_, err = io.Copy(modelFile, modelBlob)
		modelFile.Close()
		modelBlob.Close()
		if err != nil {
			return nil, fmt.Errorf("Error copying model %s to sandbox: %s", key, err)
		}
	}

	var args []string
	switch task.Kind {
	case common.TaskTrain:
		args = append([]string{common.TaskTrain, "--rank", strconv.Itoa(task.Rank)}, task.ModelKeys...)
	case common.TaskPredict:
		args = []string{common.TaskPredict, task.ModelKeys[0]}
	case common.TaskAggregate:
		args = append([]string{common.TaskAggregate}, task.ModelKeys...)
	}

	imageName := fmt.Sprintf("%s-%s", w.algoImagePrefix, task.Algo)
	unloadImage, err := w.stageAlgoImage(imageName, task.Algo)
	if err != nil {
		return nil, err
	}
	defer unloadImage()

	_, err = w.containerRuntime.RunImageInUntrustedContainer(imageName, args, map[string]string{
		dataFolder:  sandboxDataFolder,
		modelFolder: sandboxModelFolder,
		predFolder:  sandboxPredFolder,
	}, true)
	if err != nil {
		return nil, common.NewOperationFailedError(task.Kind, err)
	}

	result := &runner.Result{}
	switch task.Kind {
	case common.TaskTrain, common.TaskAggregate:
		result.ModelKey, err = w.uploadProducedModel(modelFolder, task)
		if err != nil {
			return nil, err
		}
	case common.TaskPredict:
		if err := os.Rename(filepath.Join(predFolder, predFileName), task.PredictionsOut); err != nil {
			return nil, common.NewStorageError(fmt.Sprintf("Error collecting predictions for task %s", task.ID), err)
		}
		if task.MetricsOut != "" {
			result.Metrics, err = readPerfFile(filepath.Join(predFolder, perfFileName))
			if err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// stageAlgoImage loads the packaged algorithm image into the container runtime when a tarball for
// it sits in the algo image folder, and returns the matching unload callback. Images are assumed
// pre-loaded when no folder is configured or no tarball is present.
func (w *Worker) stageAlgoImage(imageName, algoName string) (unload func(), err error) {
	noop := func() {}
	if w.algoImageDir == "" {
		return noop, nil
	}

	tarballPath := filepath.Join(w.algoImageDir, algoName+".tar.gz")
	tarball, err := os.Open(tarballPath)
	if os.IsNotExist(err) {
		return noop, nil
	}
	if err != nil {
		return noop, fmt.Errorf("Error opening algorithm image tarball %s: %s", tarballPath, err)
	}
	defer tarball.Close()

	imageTarReader, err := gzip.NewReader(tarball)
	if err != nil {
		return noop, fmt.Errorf("Error un-gzipping algorithm image %s: %s", imageName, err)
	}
	defer imageTarReader.Close()

	image, err := w.containerRuntime.ImageBuild(imageName, imageTarReader)
	if err != nil {
		return noop, fmt.Errorf("Error building algorithm image %s: %s", imageName, err)
	}
	defer image.Close()

	if err = w.containerRuntime.ImageLoad(imageName, image); err != nil {
		return noop, fmt.Errorf("Error loading algorithm image %s in the container runtime: %s", imageName, err)
	}

	log.Printf("[INFO] Algorithm image %s staged from %s", imageName, tarballPath)
	return func() { w.containerRuntime.ImageUnload(imageName) }, nil
}

// uploadProducedModel pushes /sandbox/model/model to storage under its content key and writes the
// key where the task descriptor asks for it
func (w *Worker) uploadProducedModel(modelFolder string, task *common.TaskDescriptor) (string, error) {
	modelPath := filepath.Join(modelFolder, modelFileName)
	blob, err := os.ReadFile(modelPath)
	if err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Error reading produced model %s", modelPath), err)
	}

	sum := sha256.Sum256(blob)
	key := hex.EncodeToString(sum[:])
	if err = w.storage.PostModelBlob(key, task.Algo, bytes.NewReader(blob), int64(len(blob))); err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Error uploading model %s", key), err)
	}

	if err = os.WriteFile(task.ModelKeyOut, []byte(key+"\n"), 0644); err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Error writing model key to %s", task.ModelKeyOut), err)
	}
	return key, nil
}

func readPerfFile(path string) (algo.Metrics, error) {
	perfBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Error reading perf file %s", path), err)
	}
	perf := algo.Metrics{}
	if err := json.Unmarshal(perfBytes, &perf); err != nil {
		return nil, fmt.Errorf("Error un-marshaling perf file %s: %s", path, err)
	}
	return perf, nil
}
