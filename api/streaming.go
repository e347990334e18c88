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
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/kataras/iris.v6"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

// PostMultipartFields represents all the valid multipart fields for the routes
var PostMultipartFields = map[string][]string{
	ModelListRoute:      []string{"uuid", "algo", "key", "size", "blob"},
	DataListRoute:       []string{"uuid", "owner", "size", "blob"},
	PredictionListRoute: []string{"uuid", "model", "size", "blob"},
}

const (
	// StrFieldMaxLength is the max length for the multipart fields
	StrFieldMaxLength = 255 // in bytes
	intFieldMaxLength = 20  // in bytes
)

func readMultipartField(formName string, part io.ReadCloser, maxLength int) (string, error) {
	defer part.Close()
	buf := make([]byte, maxLength)
	offset := 0
	for {
		n, err := part.Read(buf[offset:])
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("Error reading %s: %s", formName, err)
		}
		offset += n

		if err == io.EOF || offset == len(buf) {
			break
		}
	}

	// Buffer overflow test
	rest := make([]byte, 10)
	n, err := part.Read(rest)
	if err != io.EOF || n > 0 {
		return "", fmt.Errorf("Buffer overflow reading %s (max length is %d in base 10): %s", formName, maxLength, err)
	}
	return string(buf[:offset]), nil
}

func (s *APIServer) streamMultipartToStorage(ResourceModel Model, resource common.Resource, c *iris.Context) (int, error) {
	mediaType, params, err := mime.ParseMediaType(c.Request.Header.Get("Content-Type"))
	if err != nil {
		return 400, fmt.Errorf("Error parsing header \"Content-Type\": %s", err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return 400, fmt.Errorf("Invalid media type: %s. Should be: multipart/form-data", mediaType)
	}

	reader := multipart.NewReader(c.Request.Body, params["boundary"])
	defer c.Request.Body.Close()

	var size int64
	formFields := make(map[string]interface{})
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 400, fmt.Errorf("Error parsing multipart data: %s", err)
		}

		switch formName := part.FormName(); formName {
		case "uuid":
			uuidStr, err := readMultipartField(formName, part, StrFieldMaxLength)
			if err != nil {
				return 400, fmt.Errorf("Error reading UUID %s", err)
			}
			id, err := uuid.FromString(uuidStr)
			if err != nil {
				return 400, fmt.Errorf("Error parsing UUID %s", err)
			}
			if err = ResourceModel.CheckUUIDNotUsed(id); err != nil {
				return 409, err
			}
			formFields["uuid"] = id
		case "algo", "key", "owner", "model":
			formFields[formName], err = readMultipartField(formName, part, StrFieldMaxLength)
			if err != nil {
				return 400, fmt.Errorf("Error reading %s: %s", formName, err)
			}
		case "size":
			sizeStr, err := readMultipartField(formName, part, intFieldMaxLength)
			if err != nil {
				return 400, fmt.Errorf("Error reading size field: %s", err)
			}
			size, err = strconv.ParseInt(sizeStr, 10, 64)
			if err != nil {
				return 400, fmt.Errorf("Error parsing size field to integer: %s", err)
			}
		default:
			defer part.Close()
			if formName == "blob" {
				err := resource.FillResource(formFields)
				if err != nil {
					return 400, fmt.Errorf("Invalid form: %s. Make sure that each form field is sent before blob in the multipart/form", err)
				}
				if err = resource.Check(); err != nil {
					return 400, fmt.Errorf("Invalid form: %s. Make sure that each form field is sent before blob in the multipart/form", err)
				}
				if size == 0 {
					return 400, fmt.Errorf("Invalid form: 'Size' unset. Make sure that each form field is sent before blob in the multipart/form")
				}
				err = s.BlobStore.Put(s.getBlobKey(ResourceModel.GetModelName(), resource.BlobRef()), part, size)
				if err != nil {
					return 500, fmt.Errorf("Error writing blob content to storage: %s", err)
				}
				return 201, nil
			}
			return 400, fmt.Errorf("Unknown field \"%s\"", part.FormName())
		}
	}
	// If method is patch, fill resource and return 200 if patch is valid. A blob-less patch only
	// rewrites the record fields, the caller takes care of moving the blob if its ref changed.
	if c.Method() == "PATCH" {
		if err := resource.FillResource(formFields); err != nil {
			return 400, fmt.Errorf("Invalid form: %s. Make sure that each form field is sent before blob in the multipart/form", err)
		}
		if err = resource.Check(); err != nil {
			return 400, fmt.Errorf("Invalid form: %s. Make sure that each form field is sent before blob in the multipart/form", err)
		}
		return 200, nil
	}
	return 400, errors.New("Premature EOF while parsing request")
}

func (s *APIServer) streamBlobFromStorage(blobType string, blobRef string, c *iris.Context) {
	blobReader, err := s.BlobStore.Get(s.getBlobKey(blobType, blobRef))
	if err != nil {
		if errors.Is(err, common.ErrBlobNotFound) {
			c.JSON(404, common.NewAPIError(fmt.Sprintf("Error retrieving %s %s: %s", blobType, blobRef, err)))
			return
		}
		c.JSON(500, common.NewAPIError(fmt.Sprintf("Error retrieving %s %s: %s", blobType, blobRef, err)))
		return
	}
	defer blobReader.Close()
	c.StreamWriter(func(w io.Writer) bool {
		_, err := io.Copy(w, blobReader)
		if err != nil {
			c.JSON(500, common.NewAPIError(fmt.Sprintf("Error reading %s %s: %s", blobType, blobRef, err)))
			return false
		}
		return false
	})
}
