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
)

// Process exit codes, one per failure family so that the orchestrator can tell failures apart
// without parsing logs.
const (
	ExitSuccess         = 0
	ExitInvalidTask     = 2
	ExitMissingInput    = 3
	ExitOperationFailed = 4
	ExitShapeMismatch   = 5
	ExitStorage         = 6
)

// InvalidTaskError signals a malformed descriptor or an unsupported operation request. Nothing has
// been read or written when it is raised.
type InvalidTaskError struct {
	Message string `json:"string"`
}

func (e *InvalidTaskError) Error() string {
	return e.Message
}

// NewInvalidTaskError builds an InvalidTaskError, given an error message
func NewInvalidTaskError(message string) *InvalidTaskError {
	return &InvalidTaskError{Message: message}
}

// MissingInputError signals that a declared input (dataset partition or model key) couldn't be
// resolved.
type MissingInputError struct {
	Input string
	Cause error
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("Missing input %s: %s", e.Input, e.Cause)
}

func (e *MissingInputError) Unwrap() error {
	return e.Cause
}

// NewMissingInputError builds a MissingInputError for a given input reference
func NewMissingInputError(input string, cause error) *MissingInputError {
	return &MissingInputError{Input: input, Cause: cause}
}

// TrainingError signals an algorithm-level failure on well-formed but unsuitable training data.
type TrainingError struct {
	Message string `json:"string"`
}

func (e *TrainingError) Error() string {
	return e.Message
}

// NewTrainingError builds a TrainingError, given an error message
func NewTrainingError(message string) *TrainingError {
	return &TrainingError{Message: message}
}

// PredictionError is the prediction-side equivalent of TrainingError.
type PredictionError struct {
	Message string `json:"string"`
}

func (e *PredictionError) Error() string {
	return e.Message
}

// NewPredictionError builds a PredictionError, given an error message
func NewPredictionError(message string) *PredictionError {
	return &PredictionError{Message: message}
}

// ShapeMismatchError signals a contract bug: the operation produced an output whose shape doesn't
// line up with its input (e.g. fewer predictions than dataset records). The runner reports it
// rather than silently truncating or padding.
type ShapeMismatchError struct {
	Expected int
	Actual   int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("Shape mismatch: expected %d records, operation produced %d", e.Expected, e.Actual)
}

// NewShapeMismatchError builds a ShapeMismatchError given the expected and actual record counts
func NewShapeMismatchError(expected, actual int) *ShapeMismatchError {
	return &ShapeMismatchError{Expected: expected, Actual: actual}
}

// StorageError signals a model store / blob store read or write failure.
type StorageError struct {
	Message string
	Cause   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError builds a StorageError wrapping the underlying cause
func NewStorageError(message string, cause error) *StorageError {
	return &StorageError{Message: message, Cause: cause}
}

// OperationFailedError wraps any other unhandled failure coming out of an operation
// implementation. The underlying cause is kept attached.
type OperationFailedError struct {
	Stage string
	Cause error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("Operation %s failed: %s", e.Stage, e.Cause)
}

func (e *OperationFailedError) Unwrap() error {
	return e.Cause
}

// NewOperationFailedError builds an OperationFailedError for the given stage
func NewOperationFailedError(stage string, cause error) *OperationFailedError {
	return &OperationFailedError{Stage: stage, Cause: cause}
}

// ErrBlobNotFound is returned by blob stores when no blob lives under the requested key. Callers
// turn it into a MissingInputError so that it maps to the right exit code.
var ErrBlobNotFound = errors.New("blob not found")

// ExitCode maps an error to its process exit code. Unrecognized errors count as operation
// failures: no failure may ever map back to ExitSuccess.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var invalidTask *InvalidTaskError
	var missingInput *MissingInputError
	var shapeMismatch *ShapeMismatchError
	var storage *StorageError

	switch {
	case errors.As(err, &invalidTask):
		return ExitInvalidTask
	case errors.As(err, &missingInput):
		return ExitMissingInput
	case errors.As(err, &shapeMismatch):
		return ExitShapeMismatch
	case errors.As(err, &storage):
		return ExitStorage
	default:
		return ExitOperationFailed
	}
}

// APIError wraps errors sent back by the HTTP API
type APIError struct {
	Message string `json:"string"`
}

// NewAPIError creates an APIError object, given an error message
func NewAPIError(message string) (err *APIError) {
	return &APIError{
		Message: message,
	}
}

// Error returns the error message as a string
func (err *APIError) Error() string {
	return err.Message
}
