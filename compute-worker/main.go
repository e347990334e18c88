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
	"log"

	"github.com/MorpheoOrg/morpheo-algorunner/client"
	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

func main() {
	conf, err := NewWorkerConfig()
	if err != nil {
		log.Panicf("[FATAL ERROR] Invalid configuration: %s", err)
	}

	// Let's connect with Storage
	var storageBackend client.Storage
	if conf.StorageHost == "" {
		log.Println("[WARNING] No storage host provided, using the Storage API Mock")
		storageBackend = client.NewStorageAPIMock()
	} else {
		storageBackend = &client.StorageAPI{
			Hostname: conf.StorageHost,
			Port:     conf.StoragePort,
			User:     conf.StorageUser,
			Password: conf.StoragePassword,
		}
	}

	// And with the orchestrator
	var orchestratorBackend client.Orchestrator
	if conf.OrchestratorHost == "" {
		log.Println("[WARNING] No orchestrator host provided, using the Orchestrator API Mock")
		orchestratorBackend = client.NewOrchestratorAPIMock()
	} else {
		orchestratorBackend = &client.OrchestratorAPI{
			Hostname: conf.OrchestratorHost,
			Port:     conf.OrchestratorPort,
		}
	}

	// Container runtime, for workers that run packaged algorithm images
	var containerRuntime common.ContainerRuntime
	if conf.Execution == ExecutionDocker {
		containerRuntime, err = common.NewDockerRuntime(conf.DockerTimeout)
		if err != nil {
			log.Panicf("[FATAL ERROR] Impossible to connect to the Docker daemon: %s", err)
		}
	}

	worker := NewWorker(
		conf.DataDir,
		conf.Execution,
		conf.AlgoImagePrefix,
		conf.AlgoImageDir,
		containerRuntime,
		storageBackend,
		orchestratorBackend,
	)

	// Let's hook with our consumer and wire our message handlers
	consumer := common.NewNSQConsumer(conf.NsqlookupdURLs, conf.Channel, conf.QueuePollingInterval)
	consumer.AddHandler(common.TrainTopic, worker.HandleLearn, conf.LearnParallelism)
	consumer.AddHandler(common.PredictTopic, worker.HandlePred, conf.PredictParallelism)
	consumer.AddHandler(common.AggregateTopic, worker.HandleAgg, conf.AggParallelism)

	// Let's connect for real and start pulling tasks
	consumer.ConsumeUntilKilled()

	log.Println("[INFO] Consumer has been gracefully stopped... Bye bye!")
}
