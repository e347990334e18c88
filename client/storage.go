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

package client

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
	uuid "github.com/satori/go.uuid"
)

// Storage HTTP API routes
const (
	StorageModelRoute      = "model"
	StorageDataRoute       = "data"
	StoragePredictionRoute = "prediction"
	BlobSuffix             = "blob"
)

// Storage describes the model/data storage service API
type Storage interface {
	GetDataBlob(id uuid.UUID) (dataReader io.ReadCloser, err error)
	GetModelBlob(key string) (modelReader io.ReadCloser, err error)
	PostModelBlob(key string, algoName string, modelReader io.Reader, size int64) error
	PostPredictionBlob(id uuid.UUID, modelKey string, predReader io.Reader, size int64) error
}

// StorageAPI is a wrapper around our storage HTTP API
type StorageAPI struct {
	Storage

	Hostname string
	Port     int
	User     string
	Password string
}

func (s *StorageAPI) getBlob(route, id string) (dataReader io.ReadCloser, err error) {
	url := fmt.Sprintf("http://%s:%d/%s/%s/%s", s.Hostname, s.Port, route, id, BlobSuffix)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("[storage-api] Error building GET request against %s: %s", url, err)
	}
	req.SetBasicAuth(s.User, s.Password)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[storage-api] Error performing GET request against %s: %s", url, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, common.ErrBlobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("[storage-api] Bad status code (%s) performing GET request against %s", resp.Status, url)
	}

	return resp.Body, nil
}

func (s *StorageAPI) postMultipartBlob(route string, fields map[string]string, blob io.Reader, size int64) error {
	url := fmt.Sprintf("http://%s:%d/%s", s.Hostname, s.Port, route)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("[storage-api] Error writing form field %s: %s", name, err)
		}
	}
	if err := writer.WriteField("size", fmt.Sprintf("%d", size)); err != nil {
		return fmt.Errorf("[storage-api] Error writing form field size: %s", err)
	}
	part, err := writer.CreateFormFile("blob", "blob")
	if err != nil {
		return fmt.Errorf("[storage-api] Error creating blob form field: %s", err)
	}
	if _, err := io.Copy(part, blob); err != nil {
		return fmt.Errorf("[storage-api] Error writing blob form field: %s", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("[storage-api] Error finalizing multipart form: %s", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("[storage-api] Error building streaming POST request against %s: %s", url, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(s.User, s.Password)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("[storage-api] Error performing streaming POST request against %s: %s", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("[storage-api] Bad status code (%s) performing streaming POST request against %s", resp.Status, url)
	}
	return nil
}

// GetDataBlob returns an io.ReadCloser on a dataset partition (a CSV file)
func (s *StorageAPI) GetDataBlob(id uuid.UUID) (dataReader io.ReadCloser, err error) {
	return s.getBlob(StorageDataRoute, id.String())
}

// GetModelBlob returns an io.ReadCloser on a model blob, addressed by its content key
func (s *StorageAPI) GetModelBlob(key string) (modelReader io.ReadCloser, err error) {
	return s.getBlob(StorageModelRoute, key)
}

// PostModelBlob uploads a model blob under its content key, registering it in the model index
func (s *StorageAPI) PostModelBlob(key string, algoName string, modelReader io.Reader, size int64) error {
	return s.postMultipartBlob(StorageModelRoute, map[string]string{
		"uuid": uuid.NewV4().String(),
		"algo": algoName,
		"key":  key,
	}, modelReader, size)
}

// PostPredictionBlob uploads a prediction set, keeping track of the model it was computed with
func (s *StorageAPI) PostPredictionBlob(id uuid.UUID, modelKey string, predReader io.Reader, size int64) error {
	return s.postMultipartBlob(StoragePredictionRoute, map[string]string{
		"uuid":  id.String(),
		"model": modelKey,
	}, predReader, size)
}

// StorageModelStore adapts the storage API to the runner's model store contract, so that a task
// can read and write models straight against the storage service instead of a local blob store.
type StorageModelStore struct {
	Storage  Storage
	AlgoName string
}

// Load fetches the model blob stored under the provided content key
func (s *StorageModelStore) Load(key string) ([]byte, error) {
	reader, err := s.Storage.GetModelBlob(key)
	if err == common.ErrBlobNotFound {
		return nil, common.NewMissingInputError(fmt.Sprintf("model %s", key), err)
	}
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Error retrieving model %s", key), err)
	}
	defer reader.Close()

	blob, err := io.ReadAll(reader)
	if err != nil {
		return nil, common.NewStorageError(fmt.Sprintf("Error reading model %s", key), err)
	}
	return blob, nil
}

// Save uploads the model blob under its content-address key and returns that key
func (s *StorageModelStore) Save(blob []byte) (string, error) {
	sum := sha256.Sum256(blob)
	key := hex.EncodeToString(sum[:])
	err := s.Storage.PostModelBlob(key, s.AlgoName, bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return "", common.NewStorageError(fmt.Sprintf("Error uploading model %s", key), err)
	}
	return key, nil
}

// StorageAPIMock is a mock of the storage API (for tests & local dev. purposes)
type StorageAPIMock struct {
	Storage

	EvilDataUUID string
	EvilModelKey string

	models map[string][]byte
}

// NewStorageAPIMock instantiates our mock of the storage API
func NewStorageAPIMock() (s *StorageAPIMock) {
	return &StorageAPIMock{
		EvilDataUUID: "58bc25d9-712d-4a53-8e73-2d6ca4d837c2",
		EvilModelKey: "0000000000000000000000000000000000000000000000000000000000000000",
		models:       map[string][]byte{},
	}
}

// GetDataBlob returns a fake CSV partition (the same, no matter the UUID)
func (s *StorageAPIMock) GetDataBlob(id uuid.UUID) (dataReader io.ReadCloser, err error) {
	if id.String() == s.EvilDataUUID {
		return nil, common.ErrBlobNotFound
	}

	return io.NopCloser(bytes.NewBufferString("x,y,label\n0,0.25,0\n5,6,1\n")), nil
}

// GetModelBlob returns whatever was previously posted under the provided key
func (s *StorageAPIMock) GetModelBlob(key string) (modelReader io.ReadCloser, err error) {
	if key == s.EvilModelKey {
		return nil, common.ErrBlobNotFound
	}
	blob, ok := s.models[key]
	if !ok {
		return nil, common.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

// PostModelBlob keeps the model blob in memory
func (s *StorageAPIMock) PostModelBlob(key string, algoName string, modelReader io.Reader, size int64) error {
	blob, err := io.ReadAll(modelReader)
	if err != nil {
		return err
	}
	s.models[key] = blob
	return nil
}

// PostPredictionBlob forwards the given prediction bytes... to /dev/null AHAHAHAH !
func (s *StorageAPIMock) PostPredictionBlob(id uuid.UUID, modelKey string, predReader io.Reader, size int64) error {
	_, err := io.Copy(io.Discard, predReader)
	return err
}
