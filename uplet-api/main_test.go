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
	"encoding/json"
	"testing"

	uuid "github.com/satori/go.uuid"
	"github.com/stretchr/testify/require"
	"gopkg.in/kataras/iris.v6"
	"gopkg.in/kataras/iris.v6/adaptors/httprouter"
	"gopkg.in/kataras/iris.v6/httptest"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// recordingProducer keeps every pushed payload in memory, per topic.
type recordingProducer struct {
	pushed map[string][][]byte
}

func newRecordingProducer() *recordingProducer {
	return &recordingProducer{pushed: map[string][][]byte{}}
}

func (p *recordingProducer) Push(topic string, body []byte) error {
	p.pushed[topic] = append(p.pushed[topic], body)
	return nil
}

func (p *recordingProducer) Stop() {}

func setTestGateway() (*iris.Framework, *recordingProducer) {
	app := iris.New()
	app.Adapt(httprouter.New())

	producer := newRecordingProducer()
	apiServer := NewAPIServer(&ProducerConfig{}, producer)
	apiServer.configureRoutes(app)
	return app, producer
}

func TestPublicGatewayRoutes(t *testing.T) {
	app, _ := setTestGateway()
	e := httptest.New(app, t)

	e.GET(rootRoute).Expect().Status(200)
	e.GET(healthRoute).Expect().Status(200).JSON().Equal(map[string]interface{}{"status": "ok"})
}

func TestPostLearnuplet(t *testing.T) {
	app, producer := setTestGateway()
	e := httptest.New(app, t)

	learnUplet := common.LearnUplet{
		ID:        uuid.NewV4(),
		Algo:      "centroid",
		TrainData: []uuid.UUID{uuid.NewV4()},
		ModelEnd:  uuid.NewV4(),
		Status:    common.TaskStatusTodo,
	}
	e.POST(learnRoute).WithJSON(learnUplet).Expect().Status(iris.StatusAccepted)

	require.Len(t, producer.pushed[common.TrainTopic], 1)
	var pushed common.LearnUplet
	require.NoError(t, json.Unmarshal(producer.pushed[common.TrainTopic][0], &pushed))
	require.True(t, uuid.Equal(learnUplet.ID, pushed.ID))
	require.Equal(t, learnUplet.Algo, pushed.Algo)
}

func TestPostUpletRejectsGarbage(t *testing.T) {
	app, producer := setTestGateway()
	e := httptest.New(app, t)

	// Body that isn't JSON at all
	e.POST(learnRoute).WithText("not json").Expect().Status(iris.StatusBadRequest)

	// Valid JSON, invalid uplet (no train data, no model slot)
	e.POST(learnRoute).WithJSON(common.LearnUplet{
		ID:     uuid.NewV4(),
		Algo:   "centroid",
		Status: common.TaskStatusTodo,
	}).Expect().Status(iris.StatusBadRequest)

	require.Empty(t, producer.pushed)
}

func TestPostPredAndAgguplet(t *testing.T) {
	app, producer := setTestGateway()
	e := httptest.New(app, t)

	e.POST(predRoute).WithJSON(common.Preduplet{
		ID:     uuid.NewV4(),
		Algo:   "centroid",
		Model:  "abc123",
		Data:   []uuid.UUID{uuid.NewV4()},
		Status: common.TaskStatusTodo,
	}).Expect().Status(iris.StatusAccepted)

	e.POST(aggRoute).WithJSON(common.AggUplet{
		ID:       uuid.NewV4(),
		Algo:     "centroid",
		Models:   []string{"abc123"},
		ModelEnd: uuid.NewV4(),
		Status:   common.TaskStatusTodo,
	}).Expect().Status(iris.StatusAccepted)

	require.Len(t, producer.pushed[common.PredictTopic], 1)
	require.Len(t, producer.pushed[common.AggregateTopic], 1)
}
