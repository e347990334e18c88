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

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// ProducerConfig holds the uplet gateway configuration
type ProducerConfig struct {
	Hostname   string
	Port       int
	CertFile   string
	KeyFile    string
	Broker     string
	BrokerHost string
	BrokerPort int
}

// TLSOn returns true if TLS credentials have been provided
func (c *ProducerConfig) TLSOn() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// NewProducerConfig parses CLI flags and generates the gateway config
func NewProducerConfig() (conf *ProducerConfig) {
	var (
		hostname   string
		port       int
		certFile   string
		keyFile    string
		broker     string
		brokerHost string
		brokerPort int
	)

	// CLI Flags
	flag.StringVar(&hostname, "host", "0.0.0.0", "The hostname our server will be listening on")
	flag.IntVar(&port, "port", 8001, "The port our uplet gateway will be listening on")
	flag.StringVar(&certFile, "cert", "", "Path to the TLS certificate file")
	flag.StringVar(&keyFile, "key", "", "Path to the TLS key file")
	flag.StringVar(&broker, "broker", common.BrokerNSQ, "Broker type to use (only 'nsq' available for now)")
	flag.StringVar(&brokerHost, "broker-host", "nsqd", "The address of the NSQ broker to push uplets to")
	flag.IntVar(&brokerPort, "broker-port", 4150, "The TCP port of the NSQ broker to push uplets to")
	flag.Parse()

	return &ProducerConfig{
		Hostname:   hostname,
		Port:       port,
		CertFile:   certFile,
		KeyFile:    keyFile,
		Broker:     broker,
		BrokerHost: brokerHost,
		BrokerPort: brokerPort,
	}
}
