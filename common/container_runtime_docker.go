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
	"context"
	"fmt"
	"io"
	"log"
	"time"

	dockerTypes "github.com/docker/docker/api/types"
	dockerContainer "github.com/docker/docker/api/types/container"
	dockerNetwork "github.com/docker/docker/api/types/network"
	dockerCli "github.com/docker/docker/client"
	uuid "github.com/satori/go.uuid"
)

// DockerRuntime implements ContainerRuntime for Docker
type DockerRuntime struct {
	timeout time.Duration
	docker  *dockerCli.Client
}

// NewDockerRuntime creates a new Docker container runtime. The timeout applies to every Docker
// command (builds, runs, pulls, etc...)
func NewDockerRuntime(timeout time.Duration) (r *DockerRuntime, err error) {
	apiClient, err := dockerCli.NewEnvClient()
	if err != nil {
		return nil, fmt.Errorf("Error creating Docker client: %s", err)
	}

	return &DockerRuntime{
		timeout: timeout,
		docker:  apiClient,
	}, nil
}

// ImageBuild builds a Docker image from a given build context. The context actually simply is a
// tar archive of a folder containing a Dockerfile and all the files required to build that
// Dockerfile.
//
// Note that it is up to the caller to call Close() on the returned io.ReadCloser
func (r *DockerRuntime) ImageBuild(name string, buildContext io.Reader) (image io.ReadCloser, err error) {
	dockerImage, err := r.docker.ImageBuild(context.Background(), buildContext, dockerTypes.ImageBuildOptions{
		Tags:           []string{name},
		SuppressOutput: false,
		NoCache:        false,
		Remove:         true,
		ForceRemove:    true,
		PullParent:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("[docker-runtime] Error building image %s: %s", name, err)
	}
	return dockerImage.Body, nil
}

// ImageLoad loads an image from a file into the Docker daemon (equivalent to the "docker load"
// command)
func (r *DockerRuntime) ImageLoad(name string, imageReader io.Reader) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.docker.ImageLoad(ctx, imageReader, false)
	if err != nil {
		return fmt.Errorf("[docker-runtime] Error loading image %s: %s", name, err)
	}
	return nil
}

// ImageUnload removes an image from the Docker daemon (equivalent to the "docker rmi" command)
func (r *DockerRuntime) ImageUnload(imageID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	_, err := r.docker.ImageRemove(ctx, imageID, dockerTypes.ImageRemoveOptions{
		Force:         true,
		PruneChildren: false,
	})
	if err != nil {
		return fmt.Errorf("[docker-runtime] Error removing image %s: %s", imageID, err)
	}
	return nil
}

// RunImageInUntrustedContainer launches a container on the bound docker host with as many
// restrictions as possible for our use case: no network, no privileges, bind mounts only on the
// task sandbox folders. It blocks until the containerized command exits.
func (r *DockerRuntime) RunImageInUntrustedContainer(imageName string, args []string, mounts map[string]string, autoRemove bool) (containerID string, err error) {
	containerName := uuid.NewV4().String()
	log.Printf("[INFO][docker-runtime] Running `%s` in untrusted container %s (image: %s)", args, containerName, imageName)

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	binds := []string{}
	for hostPath, containerPath := range mounts {
		binds = append(binds, fmt.Sprintf("%s:%s", hostPath, containerPath))
	}

	// Let's create the container and run the command in it
	containerCreateBody, err := r.docker.ContainerCreate(
		ctx,
		&dockerContainer.Config{
			AttachStdin:     false,
			AttachStdout:    true,
			AttachStderr:    true,
			Tty:             false,
			OpenStdin:       false,
			Cmd:             args,
			Image:           imageName,
			WorkingDir:      "/sandbox",
			NetworkDisabled: true,
			Labels:          map[string]string{},
		},
		&dockerContainer.HostConfig{
			AutoRemove: autoRemove,
			Privileged: false,
			Binds:      binds,
		},
		&dockerNetwork.NetworkingConfig{},
		containerName,
	)
	if err != nil {
		return "", fmt.Errorf("Error creating Docker container %s: %s", containerName, err)
	}

	for n, warning := range containerCreateBody.Warnings {
		log.Printf("[WARNING %d][docker-runtime] Warning creating container: %s", n, warning)
	}

	err = r.docker.ContainerStart(
		ctx,
		containerCreateBody.ID,
		dockerTypes.ContainerStartOptions{},
	)
	if err != nil {
		return "", fmt.Errorf("Error starting Docker container %s: %s", containerName, err)
	}

	// Let's wait for the command to be over
	status, err := r.docker.ContainerWait(ctx, containerCreateBody.ID)
	if err != nil {
		return "", fmt.Errorf("Error waiting for untrusted container to exit: %s", err)
	}
	if status != 0 {
		return containerCreateBody.ID, fmt.Errorf("Untrusted container exited with status code %d", status)
	}

	log.Printf("[INFO][docker-runtime] Untrusted container ran command, status code: %d", status)

	return containerCreateBody.ID, nil
}
