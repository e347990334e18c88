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
	"flag"
	"fmt"
	"time"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// WorkerConfig holds the worker configuration
type WorkerConfig struct {
	// Broker
	NsqlookupdURLs       []string
	Channel              string
	QueuePollingInterval time.Duration
	LearnParallelism     int
	PredictParallelism   int
	AggParallelism       int

	// Other compute services
	OrchestratorHost string
	OrchestratorPort int
	StorageHost      string
	StoragePort      int
	StorageUser      string
	StoragePassword  string

	// Task execution
	DataDir         string
	Execution       string
	AlgoImagePrefix string
	AlgoImageDir    string
	DockerTimeout   time.Duration
}

// NewWorkerConfig parses CLI flags, generates and validates a WorkerConfig
func NewWorkerConfig() (conf *WorkerConfig, err error) {
	var (
		nsqlookupdURLs       common.MultiStringFlag
		channel              string
		queuePollingInterval time.Duration
		learnParallelism     int
		predictParallelism   int
		aggParallelism       int

		orchestratorHost string
		orchestratorPort int
		storageHost      string
		storagePort      int
		storageUser      string
		storagePassword  string

		dataDir         string
		execution       string
		algoImagePrefix string
		algoImageDir    string
		dockerTimeout   time.Duration
	)

	// CLI Flags
	flag.Var(&nsqlookupdURLs, "nsqlookupd-urls", "URL(s) of NSQLookupd instances to connect to")
	flag.StringVar(&channel, "channel", "compute", "The NSQ channel to consume from (default: compute)")
	flag.DurationVar(&queuePollingInterval, "lookup-interval", 5*time.Second, "The interval at which nsqlookupd will be polled")
	flag.IntVar(&learnParallelism, "learn-parallelism", 1, "Number of learning tasks that this worker can execute in parallel")
	flag.IntVar(&predictParallelism, "predict-parallelism", 1, "Number of prediction tasks that this worker can execute in parallel")
	flag.IntVar(&aggParallelism, "agg-parallelism", 1, "Number of aggregation tasks that this worker can execute in parallel")

	flag.StringVar(&orchestratorHost, "orchestrator-host", "", "Hostname of the orchestrator to send notifications to (leave blank to use the Orchestrator API Mock)")
	flag.IntVar(&orchestratorPort, "orchestrator-port", 80, "TCP port to contact the orchestrator on (default: 80)")

	flag.StringVar(&storageHost, "storage-host", "", "Hostname of the storage API to retrieve data from (leave blank to use the Storage API Mock)")
	flag.IntVar(&storagePort, "storage-port", 80, "TCP port to contact storage on (default: 80)")
	flag.StringVar(&storageUser, "storage-user", "u", "Basic Auth username of the storage API")
	flag.StringVar(&storagePassword, "storage-password", "p", "Basic Auth password of the storage API")

	flag.StringVar(&dataDir, "data-dir", "/data", "Folder tasks are staged under while they run (default: /data)")
	flag.StringVar(&execution, "execution", ExecutionLocal, "Task execution backend: 'local' or 'docker' (default: local)")
	flag.StringVar(&algoImagePrefix, "algo-image-prefix", "algo", "Image name prefix for packaged algorithms (docker execution only)")
	flag.StringVar(&algoImageDir, "algo-image-dir", "", "Folder holding packaged algorithm images as <algo>.tar.gz archives; images are assumed pre-loaded when blank (docker execution only)")
	flag.DurationVar(&dockerTimeout, "docker-timeout", 15*time.Minute, "Docker commands timeout (default: 15m)")

	flag.Parse()

	if execution != ExecutionLocal && execution != ExecutionDocker {
		return nil, fmt.Errorf("Unknown execution backend \"%s\" (possible choices: %s, %s)", execution, ExecutionLocal, ExecutionDocker)
	}

	if len(nsqlookupdURLs) == 0 {
		nsqlookupdURLs = append(nsqlookupdURLs, "nsqlookupd:4161")
	}

	return &WorkerConfig{
		NsqlookupdURLs:       nsqlookupdURLs,
		Channel:              channel,
		QueuePollingInterval: queuePollingInterval,
		LearnParallelism:     learnParallelism,
		PredictParallelism:   predictParallelism,
		AggParallelism:       aggParallelism,

		// Other compute services
		OrchestratorHost: orchestratorHost,
		OrchestratorPort: orchestratorPort,
		StorageHost:      storageHost,
		StoragePort:      storagePort,
		StorageUser:      storageUser,
		StoragePassword:  storagePassword,

		// Task execution
		DataDir:         dataDir,
		Execution:       execution,
		AlgoImagePrefix: algoImagePrefix,
		AlgoImageDir:    algoImageDir,
		DockerTimeout:   dockerTimeout,
	}, nil
}
