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

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// RunnerConfig holds one task invocation worth of configuration
type RunnerConfig struct {
	// Task
	Kind        string
	Algo        string
	DataPaths   []string
	ModelKeys   []string
	Rank        int
	Seed        int64
	Params      map[string]string
	ModelKeyOut string
	PredOut     string
	MetricsOut  string

	// Model store backend
	BlobStore string
	DataDir   string
	AWSBucket string
	AWSRegion string
}

// NewRunnerConfig parses CLI flags, generates and validates a RunnerConfig
func NewRunnerConfig() (conf *RunnerConfig, err error) {
	var (
		algoName    string
		dataPaths   common.MultiStringFlag
		modelKeys   common.MultiStringFlag
		paramFlags  common.MultiStringFlag
		rank        int
		seed        int64
		modelKeyOut string
		predOut     string
		metricsOut  string

		blobStore string
		dataDir   string
		awsBucket string
		awsRegion string
	)

	// CLI Flags
	flag.StringVar(&algoName, "algo", "", "Name of the registered algorithm to run")
	flag.Var(&dataPaths, "data", "Path(s) to the dataset partition(s) to open (repeatable)")
	flag.Var(&modelKeys, "model-in", "Storage key(s) of the input model(s) (repeatable)")
	flag.Var(&paramFlags, "param", "Algorithm hyperparameter, key=value (repeatable)")
	flag.IntVar(&rank, "rank", 0, "Rank of this task in its compute plan (default: 0)")
	flag.Int64Var(&seed, "seed", 0, "Seed forwarded to the algorithm for reproducible runs (default: 0)")
	flag.StringVar(&modelKeyOut, "model-key-out", "", "File the storage key of the produced model is written to")
	flag.StringVar(&predOut, "pred-out", "", "File the predictions are written to")
	flag.StringVar(&metricsOut, "metrics-out", "", "File the performance report is written to (optional, predict only)")

	flag.StringVar(&blobStore, "blobstore", "local", "Model store backend: 'local' or 's3' (default: local)")
	flag.StringVar(&dataDir, "data-dir", "/data", "Models folder for the local blob store (default: /data)")
	flag.StringVar(&awsBucket, "aws-bucket", "", "AWS bucket for the S3 blob store")
	flag.StringVar(&awsRegion, "aws-region", "", "AWS region for the S3 blob store")

	flag.Parse()

	if flag.NArg() != 1 {
		return nil, fmt.Errorf("Usage: %s [flags] train|predict|aggregate", flag.CommandLine.Name())
	}

	params, err := common.ParseKeyValueFlags(paramFlags)
	if err != nil {
		return nil, err
	}

	return &RunnerConfig{
		Kind:        flag.Arg(0),
		Algo:        algoName,
		DataPaths:   dataPaths,
		ModelKeys:   modelKeys,
		Rank:        rank,
		Seed:        seed,
		Params:      params,
		ModelKeyOut: modelKeyOut,
		PredOut:     predOut,
		MetricsOut:  metricsOut,

		BlobStore: blobStore,
		DataDir:   dataDir,
		AWSBucket: awsBucket,
		AWSRegion: awsRegion,
	}, nil
}
