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
	"fmt"

	uuid "github.com/satori/go.uuid"
)

// Task kinds: the operations an algorithm container can be asked to perform
const (
	TaskTrain     = "train"
	TaskPredict   = "predict"
	TaskAggregate = "aggregate"
)

var (
	// ValidTaskKinds is a set of all possible task kind names
	ValidTaskKinds = map[string]struct{}{
		TaskTrain:     struct{}{},
		TaskPredict:   struct{}{},
		TaskAggregate: struct{}{},
	}
)

// Task statuses, as reported to the orchestrator
const (
	TaskStatusTodo    = "todo"
	TaskStatusWaiting = "waiting"
	TaskStatusPending = "pending"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)

var (
	// ValidStatuses is a set of all possible values for the "status" field
	ValidStatuses = map[string]struct{}{
		TaskStatusTodo:    struct{}{},
		TaskStatusWaiting: struct{}{},
		TaskStatusPending: struct{}{},
		TaskStatusDone:    struct{}{},
		TaskStatusFailed:  struct{}{},
	}
)

// Checkable is an Interface for things that can be Checked (i.e. validated after a JSON parsing
// for instance)
type Checkable interface {
	Check() (err error)
}

// TaskDescriptor describes one invocation of the algorithm container: exactly one operation, its
// declared inputs and its declared outputs. It is immutable for the lifetime of the task and is
// fully validated before any input is touched.
type TaskDescriptor struct {
	Checkable

	ID        uuid.UUID         `json:"uuid"`
	Kind      string            `json:"kind"`
	Algo      string            `json:"algo"`
	DataPaths []string          `json:"data"`
	ModelKeys []string          `json:"model_keys"`
	Rank      int               `json:"rank"`
	Seed      int64             `json:"seed"`
	Params    map[string]string `json:"params"`

	// Output destinations. ModelKeyOut is the file the storage key of the produced model is
	// written to (the model blob itself goes through the model store).
	ModelKeyOut    string `json:"model_key_out"`
	PredictionsOut string `json:"predictions_out"`
	MetricsOut     string `json:"metrics_out"`
}

// Check returns nil if the task descriptor is valid, an explicit error otherwise. All violations
// are reported as InvalidTaskError so that they map to the invalid-task exit code.
func (t *TaskDescriptor) Check() (err error) {

	if _, ok := ValidTaskKinds[t.Kind]; !ok {
		return NewInvalidTaskError(fmt.Sprintf("kind field ain't valid (provided: %s, possible choices: %s)", t.Kind, ValidTaskKinds))
	}

	if t.Algo == "" {
		return NewInvalidTaskError("algo field is unset")
	}

	switch t.Kind {
	case TaskTrain:
		if len(t.DataPaths) == 0 {
			return NewInvalidTaskError("data field is empty or unset")
		}
		if t.ModelKeyOut == "" {
			return NewInvalidTaskError("model_key_out field is unset")
		}
		if t.PredictionsOut != "" || t.MetricsOut != "" {
			return NewInvalidTaskError("train produces a model, not predictions or metrics")
		}
	case TaskPredict:
		if len(t.DataPaths) == 0 {
			return NewInvalidTaskError("data field is empty or unset")
		}
		if len(t.ModelKeys) != 1 {
			return NewInvalidTaskError(fmt.Sprintf("predict requires exactly one model key (provided: %d)", len(t.ModelKeys)))
		}
		if t.PredictionsOut == "" {
			return NewInvalidTaskError("predictions_out field is unset")
		}
		if t.ModelKeyOut != "" {
			return NewInvalidTaskError("predict doesn't produce a model")
		}
	case TaskAggregate:
		if len(t.ModelKeys) == 0 {
			return NewInvalidTaskError("aggregate requires at least one model key")
		}
		if len(t.DataPaths) != 0 {
			return NewInvalidTaskError("aggregate doesn't take datasets")
		}
		if t.ModelKeyOut == "" {
			return NewInvalidTaskError("model_key_out field is unset")
		}
		if t.PredictionsOut != "" || t.MetricsOut != "" {
			return NewInvalidTaskError("aggregate produces a model, not predictions or metrics")
		}
	}

	for n, key := range t.ModelKeys {
		if key == "" {
			return NewInvalidTaskError(fmt.Sprintf("empty model key in model_keys field at pos %d", n))
		}
	}

	return nil
}

// LearnUplet describes a learning task routed through the broker. Data and model references are
// storage identifiers: the worker materializes them on disk before handing the task over to the
// runner.
type LearnUplet struct {
	Checkable

	ID        uuid.UUID         `json:"uuid"`
	Algo      string            `json:"algo"`
	TrainData []uuid.UUID       `json:"train_data"`
	TestData  []uuid.UUID       `json:"test_data"`
	// ModelStart is the content key of the model to warm-start from, empty for rank-0 tasks.
	// ModelEnd is the record the orchestrator pre-assigned the produced model to.
	ModelStart string            `json:"model_start"`
	ModelEnd   uuid.UUID         `json:"model_end"`
	Rank       int               `json:"rank"`
	Seed       int64             `json:"seed"`
	Params     map[string]string `json:"params"`
	Status     string            `json:"status"`
}

// Check returns nil if the learnuplet is valid, an explicit error otherwise
func (u *LearnUplet) Check() (err error) {

	if uuid.Equal(uuid.Nil, u.ID) {
		return fmt.Errorf("id field is required")
	}

	if u.Algo == "" {
		return fmt.Errorf("algo field is required")
	}

	if len(u.TrainData) == 0 {
		return fmt.Errorf("train_data field is empty or unset")
	}
	for n, id := range u.TrainData {
		if uuid.Equal(uuid.Nil, id) {
			return fmt.Errorf("Nil UUID in train_data field at pos %d", n)
		}
	}

	for n, id := range u.TestData {
		if uuid.Equal(uuid.Nil, id) {
			return fmt.Errorf("Nil UUID in test_data field at pos %d", n)
		}
	}

	if uuid.Equal(uuid.Nil, u.ModelEnd) {
		return fmt.Errorf("model_end field is required")
	}

	if _, ok := ValidStatuses[u.Status]; !ok {
		return fmt.Errorf("status field ain't valid (provided: %s, possible choices: %s", u.Status, ValidStatuses)
	}

	return nil
}

// Preduplet describes a prediction task routed through the broker.
type Preduplet struct {
	Checkable

	ID     uuid.UUID   `json:"uuid"`
	Algo   string      `json:"algo"`
	Model  string      `json:"model"`
	Data   []uuid.UUID `json:"data"`
	Status string      `json:"status"`
}

// Check returns nil if the preduplet is valid, an explicit error otherwise
func (u *Preduplet) Check() (err error) {

	if uuid.Equal(uuid.Nil, u.ID) {
		return fmt.Errorf("id field is unset")
	}

	if u.Algo == "" {
		return fmt.Errorf("algo field is required")
	}

	if u.Model == "" {
		return fmt.Errorf("model field is required")
	}

	if len(u.Data) == 0 {
		return fmt.Errorf("data field is empty or unset")
	}
	for n, id := range u.Data {
		if uuid.Equal(uuid.Nil, id) {
			return fmt.Errorf("Nil UUID in data field at pos %d", n)
		}
	}

	if _, ok := ValidStatuses[u.Status]; !ok {
		return fmt.Errorf("status field ain't valid (provided: %s, possible choices: %s", u.Status, ValidStatuses)
	}

	return nil
}

// AggUplet describes an aggregation task: N partial models combined into one.
type AggUplet struct {
	Checkable

	ID       uuid.UUID `json:"uuid"`
	Algo     string    `json:"algo"`
	Models   []string  `json:"models"`
	ModelEnd uuid.UUID `json:"model_end"`
	Rank     int       `json:"rank"`
	Status   string    `json:"status"`
}

// Check returns nil if the agguplet is valid, an explicit error otherwise
func (u *AggUplet) Check() (err error) {

	if uuid.Equal(uuid.Nil, u.ID) {
		return fmt.Errorf("id field is unset")
	}

	if u.Algo == "" {
		return fmt.Errorf("algo field is required")
	}

	if len(u.Models) == 0 {
		return fmt.Errorf("models field is empty or unset")
	}
	for n, key := range u.Models {
		if key == "" {
			return fmt.Errorf("empty model key in models field at pos %d", n)
		}
	}

	if uuid.Equal(uuid.Nil, u.ModelEnd) {
		return fmt.Errorf("model_end field is required")
	}

	if _, ok := ValidStatuses[u.Status]; !ok {
		return fmt.Errorf("status field ain't valid (provided: %s, possible choices: %s", u.Status, ValidStatuses)
	}

	return nil
}
