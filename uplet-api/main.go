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
	"fmt"
	"log"

	"gopkg.in/kataras/iris.v6"
	"gopkg.in/kataras/iris.v6/adaptors/httprouter"
	"gopkg.in/kataras/iris.v6/middleware/logger"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

const (
	rootRoute   = "/"
	healthRoute = "/health"
	learnRoute  = "/learn"
	predRoute   = "/pred"
	aggRoute    = "/agg"
)

// APIServer receives uplets over HTTP, validates them and forwards them to
// the task broker the workers consume from.
type APIServer struct {
	conf     *ProducerConfig
	producer common.Producer
}

func NewAPIServer(conf *ProducerConfig, producer common.Producer) (s *APIServer) {
	return &APIServer{
		conf:     conf,
		producer: producer,
	}
}

func (s *APIServer) configureRoutes(app *iris.Framework) {
	app.Get(rootRoute, s.index)
	app.Get(healthRoute, s.health)
	app.Post(learnRoute, s.postLearnuplet)
	app.Post(predRoute, s.postPreduplet)
	app.Post(aggRoute, s.postAgguplet)
}

func main() {
	// App-specific config
	conf := NewProducerConfig()

	// Iris setup
	app := iris.New()
	app.Adapt(iris.DevLogger())
	app.Adapt(httprouter.New())

	// Logger middleware configuration
	customLogger := logger.New(logger.Config{
		Status: true,
		IP:     true,
		Method: true,
		Path:   true,
	})
	app.Use(customLogger)

	// Broker producer setup
	producer, err := common.NewNSQProducer(conf.BrokerHost, conf.BrokerPort)
	if err != nil {
		log.Fatalf("[FATAL ERROR] Impossible to connect to broker %s:%d: %s", conf.BrokerHost, conf.BrokerPort, err)
	}
	defer producer.Stop()

	// Handlers configuration
	apiServer := NewAPIServer(conf, producer)
	apiServer.configureRoutes(app)

	// Main server loop
	if conf.TLSOn() {
		app.ListenTLS(fmt.Sprintf("%s:%d", conf.Hostname, conf.Port), conf.CertFile, conf.KeyFile)
	} else {
		app.Listen(fmt.Sprintf("%s:%d", conf.Hostname, conf.Port))
	}
}

func (s *APIServer) index(c *iris.Context) {
	c.JSON(iris.StatusOK, []string{learnRoute, predRoute, aggRoute})
}

func (s *APIServer) health(c *iris.Context) {
	// TODO: check broker connectivity here
	c.JSON(iris.StatusOK, map[string]string{"status": "ok"})
}

// pushUplet factors the decode/check/publish cycle common to the three uplet
// routes.
func (s *APIServer) pushUplet(topic string, uplet common.Checkable, c *iris.Context) {
	// Unserializing the request body
	if err := json.NewDecoder(c.Request.Body).Decode(uplet); err != nil {
		msg := fmt.Sprintf("Error decoding body to JSON: %s", err)
		log.Printf("[INFO] %s", msg)
		c.JSON(iris.StatusBadRequest, common.NewAPIError(msg))
		return
	}

	// Let's check for required arguments presence and validity
	if err := uplet.Check(); err != nil {
		msg := fmt.Sprintf("Invalid uplet: %s", err)
		log.Printf("[INFO] %s", msg)
		c.JSON(iris.StatusBadRequest, common.NewAPIError(msg))
		return
	}

	payload, err := json.Marshal(uplet)
	if err != nil {
		msg := fmt.Sprintf("Error marshaling uplet to JSON: %s", err)
		log.Printf("[ERROR] %s", msg)
		c.JSON(iris.StatusInternalServerError, common.NewAPIError(msg))
		return
	}

	if err := s.producer.Push(topic, payload); err != nil {
		msg := fmt.Sprintf("Error pushing uplet to broker topic %s: %s", topic, err)
		log.Printf("[ERROR] %s", msg)
		c.JSON(iris.StatusInternalServerError, common.NewAPIError(msg))
		return
	}

	c.JSON(iris.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Uplet pushed to topic %s", topic),
	})
}

func (s *APIServer) postLearnuplet(c *iris.Context) {
	var learnUplet common.LearnUplet
	s.pushUplet(common.TrainTopic, &learnUplet, c)
}

func (s *APIServer) postPreduplet(c *iris.Context) {
	var predUplet common.Preduplet
	s.pushUplet(common.PredictTopic, &predUplet, c)
}

func (s *APIServer) postAgguplet(c *iris.Context) {
	var aggUplet common.AggUplet
	s.pushUplet(common.AggregateTopic, &aggUplet, c)
}
