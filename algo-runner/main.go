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
	"fmt"
	"log"
	"os"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
	"github.com/MorpheoOrg/morpheo-algorunner/opener"
	"github.com/MorpheoOrg/morpheo-algorunner/runner"
	uuid "github.com/satori/go.uuid"
)

func main() {
	conf, err := NewRunnerConfig()
	if err != nil {
		log.Printf("[FATAL ERROR] %s", err)
		os.Exit(common.ExitInvalidTask)
	}

	blobStore, err := newBlobStore(conf)
	if err != nil {
		log.Printf("[FATAL ERROR] Impossible to connect to the blob store: %s", err)
		os.Exit(common.ExitStorage)
	}

	task := &common.TaskDescriptor{
		ID:             uuid.NewV4(),
		Kind:           conf.Kind,
		Algo:           conf.Algo,
		DataPaths:      conf.DataPaths,
		ModelKeys:      conf.ModelKeys,
		Rank:           conf.Rank,
		Seed:           conf.Seed,
		Params:         conf.Params,
		ModelKeyOut:    conf.ModelKeyOut,
		PredictionsOut: conf.PredOut,
		MetricsOut:     conf.MetricsOut,
	}

	taskRunner := runner.NewRunner(
		opener.NewCSVOpener(),
		runner.NewBlobModelStore(blobStore),
		runner.NewJSONMetricsReporter(),
	)

	result, err := taskRunner.Run(task)
	if err != nil {
		log.Printf("[FATAL ERROR] Task %s (%s) failed: %s", task.ID, task.Kind, err)
		os.Exit(common.ExitCode(err))
	}

	if result.ModelKey != "" {
		log.Printf("[INFO] Task %s (%s) done. Model key: %s", task.ID, task.Kind, result.ModelKey)
	} else {
		log.Printf("[INFO] Task %s (%s) done. %d prediction(s) written", task.ID, task.Kind, len(result.Predictions))
	}
}

func newBlobStore(conf *RunnerConfig) (common.BlobStore, error) {
	switch conf.BlobStore {
	case "local":
		return common.NewLocalBlobStore(conf.DataDir)
	case "s3":
		return common.NewS3BlobStore(conf.AWSBucket, conf.AWSRegion)
	default:
		return nil, fmt.Errorf("Unknown blob store backend \"%s\" (possible choices: local, s3)", conf.BlobStore)
	}
}
