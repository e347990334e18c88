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
	"time"

	uuid "github.com/satori/go.uuid"
)

// Uplet type names, as routed through the broker and reported to the orchestrator
const (
	LearnUpletType = "learn"
	PredUpletType  = "pred"
	AggUpletType   = "agg"
)

var (
	// ValidUplets is a set of all possible uplet type names
	ValidUplets = map[string]struct{}{
		LearnUpletType: struct{}{},
		PredUpletType:  struct{}{},
		AggUpletType:   struct{}{},
	}
)

// Resource is implemented by every record the storage API persists alongside a blob
type Resource interface {
	Checkable

	GetUUID() uuid.UUID
	// BlobRef returns the identifier the blob lives under in the blob store (the record UUID,
	// except for models which are addressed by content key)
	BlobRef() string
	FillResource(fields map[string]interface{}) error
}

// Blob defines an abstract blob of data tracked by the storage API
type Blob struct {
	ID              uuid.UUID `json:"uuid" db:"uuid"`
	TimestampUpload int64     `json:"timestamp_upload" db:"timestamp_upload"`
}

func (b *Blob) fillNewBlob() {
	b.ID = uuid.NewV4()
	b.TimestampUpload = time.Now().Unix()
}

// GetUUID returns the resource identifier
func (b *Blob) GetUUID() uuid.UUID {
	return b.ID
}

// BlobRef returns the record UUID as the blob identifier
func (b *Blob) BlobRef() string {
	return b.ID.String()
}

func (b *Blob) fillBlobFields(fields map[string]interface{}) error {
	if id, ok := fields["uuid"]; ok {
		parsed, ok := id.(uuid.UUID)
		if !ok {
			return fmt.Errorf("uuid field ain't a UUID (provided: %v)", id)
		}
		b.ID = parsed
	}
	if b.TimestampUpload == 0 {
		b.TimestampUpload = time.Now().Unix()
	}
	return nil
}

// ModelRecord tracks a trained or aggregated model. The record identifier is a plain UUID, the
// blob itself lives in storage under its content-address key.
type ModelRecord struct {
	Blob

	Algo string `json:"algo" db:"algo"`
	Key  string `json:"key" db:"key"`
}

// NewModelRecord creates a model record for a blob produced by the given algorithm
func NewModelRecord(algoName, key string) *ModelRecord {
	model := &ModelRecord{
		Algo: algoName,
		Key:  key,
	}
	model.fillNewBlob()
	return model
}

// BlobRef returns the content-address key the model blob lives under
func (m *ModelRecord) BlobRef() string {
	return m.Key
}

// Check returns nil if the model record is valid, an explicit error otherwise
func (m *ModelRecord) Check() error {
	if uuid.Equal(uuid.Nil, m.ID) {
		return fmt.Errorf("uuid field is unset")
	}
	if m.Algo == "" {
		return fmt.Errorf("algo field is unset")
	}
	if m.Key == "" {
		return fmt.Errorf("key field is unset")
	}
	return nil
}

// FillResource sets the record fields from parsed form fields
func (m *ModelRecord) FillResource(fields map[string]interface{}) error {
	if err := m.fillBlobFields(fields); err != nil {
		return err
	}
	if algoName, ok := fields["algo"]; ok {
		m.Algo = fmt.Sprintf("%v", algoName)
	}
	if key, ok := fields["key"]; ok {
		m.Key = fmt.Sprintf("%v", key)
	}
	return nil
}

// DataRecord tracks an uploaded dataset partition
type DataRecord struct {
	Blob

	Owner uuid.UUID `json:"owner" db:"owner"`
}

// NewDataRecord creates a data record
func NewDataRecord(owner uuid.UUID) *DataRecord {
	data := &DataRecord{
		Owner: owner,
	}
	data.fillNewBlob()
	return data
}

// Check returns nil if the data record is valid, an explicit error otherwise
func (d *DataRecord) Check() error {
	if uuid.Equal(uuid.Nil, d.ID) {
		return fmt.Errorf("uuid field is unset")
	}
	return nil
}

// FillResource sets the record fields from parsed form fields
func (d *DataRecord) FillResource(fields map[string]interface{}) error {
	if err := d.fillBlobFields(fields); err != nil {
		return err
	}
	if owner, ok := fields["owner"]; ok {
		parsed, err := uuid.FromString(fmt.Sprintf("%v", owner))
		if err != nil {
			return fmt.Errorf("owner field ain't a UUID (provided: %v)", owner)
		}
		d.Owner = parsed
	}
	return nil
}

// PredictionRecord tracks a prediction set produced by a predict task
type PredictionRecord struct {
	Blob

	Model string `json:"model" db:"model"`
}

// NewPredictionRecord creates a prediction record bound to the model key it was computed with
func NewPredictionRecord(modelKey string) *PredictionRecord {
	pred := &PredictionRecord{
		Model: modelKey,
	}
	pred.fillNewBlob()
	return pred
}

// Check returns nil if the prediction record is valid, an explicit error otherwise
func (p *PredictionRecord) Check() error {
	if uuid.Equal(uuid.Nil, p.ID) {
		return fmt.Errorf("uuid field is unset")
	}
	if p.Model == "" {
		return fmt.Errorf("model field is unset")
	}
	return nil
}

// FillResource sets the record fields from parsed form fields
func (p *PredictionRecord) FillResource(fields map[string]interface{}) error {
	if err := p.fillBlobFields(fields); err != nil {
		return err
	}
	if modelKey, ok := fields["model"]; ok {
		p.Model = fmt.Sprintf("%v", modelKey)
	}
	return nil
}
