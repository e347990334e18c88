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

package common

import (
	"errors"
	"fmt"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTrainTask() *TaskDescriptor {
	return &TaskDescriptor{
		ID:          uuid.NewV4(),
		Kind:        TaskTrain,
		Algo:        "centroid",
		DataPaths:   []string{"/sandbox/data/part-0.csv"},
		ModelKeyOut: "/sandbox/model/key",
	}
}

func validPredictTask() *TaskDescriptor {
	return &TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           TaskPredict,
		Algo:           "centroid",
		DataPaths:      []string{"/sandbox/data/part-0.csv"},
		ModelKeys:      []string{"abc123"},
		PredictionsOut: "/sandbox/pred/pred.csv",
	}
}

func validAggregateTask() *TaskDescriptor {
	return &TaskDescriptor{
		ID:          uuid.NewV4(),
		Kind:        TaskAggregate,
		Algo:        "centroid",
		ModelKeys:   []string{"abc123", "def456"},
		ModelKeyOut: "/sandbox/model/key",
	}
}

func TestTaskDescriptorCheckValid(t *testing.T) {
	assert.NoError(t, validTrainTask().Check())
	assert.NoError(t, validPredictTask().Check())
	assert.NoError(t, validAggregateTask().Check())
}

func TestTaskDescriptorCheckRejects(t *testing.T) {
	cases := []struct {
		name   string
		mangle func(*TaskDescriptor) *TaskDescriptor
	}{
		{"unknown kind", func(d *TaskDescriptor) *TaskDescriptor {
			d.Kind = "transmogrify"
			return d
		}},
		{"empty algo", func(d *TaskDescriptor) *TaskDescriptor {
			d.Algo = ""
			return d
		}},
		{"train without data", func(d *TaskDescriptor) *TaskDescriptor {
			d.DataPaths = nil
			return d
		}},
		{"train without model key out", func(d *TaskDescriptor) *TaskDescriptor {
			d.ModelKeyOut = ""
			return d
		}},
		{"train with predictions out", func(d *TaskDescriptor) *TaskDescriptor {
			d.PredictionsOut = "/sandbox/pred/pred.csv"
			return d
		}},
		{"train with empty model key", func(d *TaskDescriptor) *TaskDescriptor {
			d.ModelKeys = []string{""}
			return d
		}},
		{"predict without model key", func(d *TaskDescriptor) *TaskDescriptor {
			d = validPredictTask()
			d.ModelKeys = nil
			return d
		}},
		{"predict with two model keys", func(d *TaskDescriptor) *TaskDescriptor {
			d = validPredictTask()
			d.ModelKeys = []string{"abc123", "def456"}
			return d
		}},
		{"predict without predictions out", func(d *TaskDescriptor) *TaskDescriptor {
			d = validPredictTask()
			d.PredictionsOut = ""
			return d
		}},
		{"predict with model key out", func(d *TaskDescriptor) *TaskDescriptor {
			d = validPredictTask()
			d.ModelKeyOut = "/sandbox/model/key"
			return d
		}},
		{"aggregate without models", func(d *TaskDescriptor) *TaskDescriptor {
			d = validAggregateTask()
			d.ModelKeys = nil
			return d
		}},
		{"aggregate with data", func(d *TaskDescriptor) *TaskDescriptor {
			d = validAggregateTask()
			d.DataPaths = []string{"/sandbox/data/part-0.csv"}
			return d
		}},
		{"aggregate with metrics out", func(d *TaskDescriptor) *TaskDescriptor {
			d = validAggregateTask()
			d.MetricsOut = "/sandbox/pred/perf.json"
			return d
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.mangle(validTrainTask()).Check()
			require.Error(t, err)
			assert.IsType(t, &InvalidTaskError{}, err)
			assert.Equal(t, ExitInvalidTask, ExitCode(err))
		})
	}
}

func TestLearnUpletCheck(t *testing.T) {
	u := &LearnUplet{
		ID:        uuid.NewV4(),
		Algo:      "centroid",
		TrainData: []uuid.UUID{uuid.NewV4()},
		TestData:  []uuid.UUID{uuid.NewV4()},
		ModelEnd:  uuid.NewV4(),
		Status:    TaskStatusTodo,
	}
	assert.NoError(t, u.Check())

	u.TrainData = append(u.TrainData, uuid.Nil)
	assert.Error(t, u.Check())
}

func TestPreddupletCheck(t *testing.T) {
	u := &Preduplet{
		ID:     uuid.NewV4(),
		Algo:   "centroid",
		Model:  "abc123",
		Data:   []uuid.UUID{uuid.NewV4()},
		Status: TaskStatusTodo,
	}
	assert.NoError(t, u.Check())

	u.Status = "definitely-not-a-status"
	assert.Error(t, u.Check())
}

func TestAggUpletCheck(t *testing.T) {
	u := &AggUplet{
		ID:       uuid.NewV4(),
		Algo:     "centroid",
		Models:   []string{"abc123", "def456"},
		ModelEnd: uuid.NewV4(),
		Status:   TaskStatusTodo,
	}
	assert.NoError(t, u.Check())

	u.Models = nil
	assert.Error(t, u.Check())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitInvalidTask, ExitCode(NewInvalidTaskError("nope")))
	assert.Equal(t, ExitMissingInput, ExitCode(NewMissingInputError("model abc123", ErrBlobNotFound)))
	assert.Equal(t, ExitOperationFailed, ExitCode(NewTrainingError("diverged")))
	assert.Equal(t, ExitOperationFailed, ExitCode(NewPredictionError("bad model")))
	assert.Equal(t, ExitShapeMismatch, ExitCode(NewShapeMismatchError(3, 2)))
	assert.Equal(t, ExitStorage, ExitCode(NewStorageError("disk full", errors.New("ENOSPC"))))
	assert.Equal(t, ExitOperationFailed, ExitCode(NewOperationFailedError("train", errors.New("boom"))))
	assert.Equal(t, ExitOperationFailed, ExitCode(errors.New("anything else")))
}

func TestExitCodeUnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("Error running task: %w", NewMissingInputError("data part 0", errors.New("no such file")))
	assert.Equal(t, ExitMissingInput, ExitCode(err))
}
