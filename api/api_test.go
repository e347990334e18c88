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
	"bytes"
	"crypto/rand"
	"testing"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/kataras/iris.v6"
	"gopkg.in/kataras/iris.v6/adaptors/httprouter"
	"gopkg.in/kataras/iris.v6/httptest"

	"github.com/MorpheoOrg/morpheo-algorunner/common"
)

var (
	objectRoutes = []string{
		ModelListRoute, ModelRoute, ModelBlobRoute,
		DataListRoute, DataRoute, DataBlobRoute,
		PredictionListRoute, PredictionRoute, PredictionBlobRoute,
	}
	listObjectRoutes = []string{ModelListRoute, DataListRoute, PredictionListRoute}
)

// setTestApp sets up the Iris app for testing, with mocked models and an in-memory blob store
// pre-filled with one blob per resource kind.
func setTestApp(blobID uuid.UUID) (*iris.Framework, *APIServer) {
	app := iris.New()
	app.Adapt(httprouter.New())
	auth := SetAuthentication("u", "p")

	modelModel, _ := NewMockedModel(ModelModelName)
	dataModel, _ := NewMockedModel(DataModelName)
	predictionModel, _ := NewMockedModel(PredictionModelName)

	blobStore := common.NewMemBlobStore()
	blob := []byte("fakeblobcontent")
	blobStore.Put("model/"+ModelMockKey, bytes.NewReader(blob), int64(len(blob)))
	blobStore.Put("data/"+blobID.String(), bytes.NewReader(blob), int64(len(blob)))
	blobStore.Put("prediction/"+blobID.String(), bytes.NewReader(blob), int64(len(blob)))

	api := &APIServer{
		Conf:            &StorageConfig{BlobStore: "mem"},
		BlobStore:       blobStore,
		ModelModel:      modelModel,
		DataModel:       dataModel,
		PredictionModel: predictionModel,
	}
	api.ConfigureRoutes(app, auth)
	return app, api
}

// Test valid public request returns Success
func TestPublicRoute(t *testing.T) {
	app, _ := setTestApp(uuid.NewV4())
	e := httptest.New(app, t)

	e.GET(RootRoute).Expect().Status(200)
	e.GET(HealthRoute).Expect().Status(200).JSON().Equal(map[string]interface{}{"status": "ok"})
}

func TestRouteAuthentication(t *testing.T) {
	app, _ := setTestApp(uuid.NewV4())
	e := httptest.New(app, t)

	for _, url := range objectRoutes {
		t.Logf(url)

		// Test access unauthorized without valid authentication
		e.GET(url).Expect().Status(401)
		e.GET(url).WithBasicAuth("invalid", "invalid").Expect().Status(401)
	}
}

func TestGetListObject(t *testing.T) {
	app, _ := setTestApp(uuid.NewV4())
	e := httptest.New(app, t)

	for _, url := range listObjectRoutes {
		t.Logf(url)

		// Test valid request returns Success
		e.GET(url).WithBasicAuth("u", "p").Expect().Status(200)
	}
}

func TestGetObject(t *testing.T) {
	randomUUID := uuid.NewV4()
	app, _ := setTestApp(randomUUID)
	e := httptest.New(app, t)

	for _, url := range listObjectRoutes {
		t.Logf(url)

		// Test valid request returns Success
		e.GET(url+"/"+randomUUID.String()).WithBasicAuth("u", "p").Expect().Status(200)

		// Test invalid uuid returns BadRequest
		e.GET(url+"/666devil").WithBasicAuth("u", "p").Expect().Status(400).Body().Match("(.*)Impossible to parse UUID(.*)")

		// Test uuid not in db returns NotFound
		e.GET(url+"/"+DevilMockUUID).WithBasicAuth("u", "p").Expect().Status(404).Body().Match("(.*)no rows in result set(.*)")
	}
}

func TestGetObjectBlob(t *testing.T) {
	randomUUID := uuid.NewV4()
	app, _ := setTestApp(randomUUID)
	e := httptest.New(app, t)

	// Model blobs are addressed by content key, no database roundtrip
	e.GET(ModelListRoute+"/"+ModelMockKey+"/blob").WithBasicAuth("u", "p").Expect().Status(200).Body().Equal("fakeblobcontent")
	e.GET(ModelListRoute+"/unknownkey/blob").WithBasicAuth("u", "p").Expect().Status(404)

	// Data and prediction blobs are addressed by record uuid
	for _, url := range []string{DataListRoute, PredictionListRoute} {
		t.Logf(url)

		e.GET(url+"/"+randomUUID.String()+"/blob").WithBasicAuth("u", "p").Expect().Status(200).Body().Equal("fakeblobcontent")
		e.GET(url+"/666devil/blob").WithBasicAuth("u", "p").Expect().Status(400).Body().Match("(.*)Impossible to parse UUID(.*)")
		e.GET(url+"/"+DevilMockUUID+"/blob").WithBasicAuth("u", "p").Expect().Status(404).Body().Match("(.*)no rows in result set(.*)")
	}
}

func TestPostObjectMultipart(t *testing.T) {
	randomUUID := uuid.NewV4()
	app, _ := setTestApp(randomUUID)
	e := httptest.New(app, t)

	forms := map[string]map[string]string{
		ModelListRoute:      {"uuid": randomUUID.String(), "algo": "centroid", "key": ModelMockKey},
		DataListRoute:       {"uuid": randomUUID.String(), "owner": uuid.NewV4().String()},
		PredictionListRoute: {"uuid": randomUUID.String(), "model": ModelMockKey},
	}

	for _, url := range listObjectRoutes {
		t.Logf(url)

		// Test valid request returns Success
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithForm(forms[url]).WithFormField("size", "666").WithFile("blob", "main.go").Expect().Status(201).Body().Match("(.*)" + randomUUID.String() + "(.*)")

		// Test request with invalid Content-Type header returns BadRequest
		e.POST(url).WithBasicAuth("u", "p").Expect().Status(400)
		e.POST(url).WithBasicAuth("u", "p").WithHeader("Content-Type", "invalid").Expect().Status(400)

		// Test invalid form fields returns BadRequest
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithFormField("invalid", "aze").Expect().Status(400).Body().Match("(.*)Unknown field(.*)")
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithFormField("uuid", "invalid").WithFile("blob", "main.go").Expect().Status(400).Body().Match("(.*)Error parsing UUID(.*)")
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithFormField("size", "invalid").Expect().Status(400).Body().Match("(.*)Error parsing size(.*)")

		// Test size omission returns BadRequest
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithForm(forms[url]).WithFile("blob", "main.go").Expect().Status(400).Body().Match("(.*)'Size' unset(.*)")

		// Test field blob not at the end returns BadRequest
		e.POST(url).WithBasicAuth("u", "p").WithMultipart().WithFile("blob", "main.go").WithForm(forms[url]).WithFormField("size", "666").Expect().Status(400)
	}

	// Test that posting a model without its content key returns BadRequest
	e.POST(ModelListRoute).WithBasicAuth("u", "p").WithMultipart().WithFormField("uuid", randomUUID.String()).WithFormField("algo", "centroid").WithFormField("size", "666").WithFile("blob", "main.go").Expect().Status(400)

	// Test big size field returns BadRequest
	buf := make([]byte, StrFieldMaxLength+1)
	rand.Read(buf)
	e.POST(ModelListRoute).WithBasicAuth("u", "p").WithMultipart().WithFormField("size", buf).Expect().Status(400).Body().Match("(.*)Buffer overflow reading size(.*)")
	e.POST(ModelListRoute).WithBasicAuth("u", "p").WithMultipart().WithFormField("algo", buf).Expect().Status(400).Body().Match("(.*)Buffer overflow reading algo(.*)")
}

func TestPatchModel(t *testing.T) {
	app, api := setTestApp(uuid.NewV4())
	e := httptest.New(app, t)

	// Test valid patch returns Success and moves the blob under the new content key
	newKey := "7d865e959b2466918c9863afca942d0fb89d7c9ac0c99bafc3749504ded97730"
	e.PATCH(ModelListRoute+"/"+ModelMockUUIDStr).WithBasicAuth("u", "p").WithMultipart().WithFormField("key", newKey).Expect().Status(200).Body().Match("(.*)" + newKey + "(.*)")
	blobReader, err := api.BlobStore.Get("model/" + newKey)
	if err != nil {
		t.Fatalf("blob was not moved under its new key: %s", err)
	}
	blobReader.Close()

	// Test used UUID returns Conflict
	e.PATCH(ModelListRoute+"/"+ModelMockUUIDStr).WithBasicAuth("u", "p").WithMultipart().WithFormField("uuid", ModelMockUUIDStr).Expect().Status(409)

	// Test patching an unknown model returns NotFound
	e.PATCH(ModelListRoute+"/"+DevilMockUUID).WithBasicAuth("u", "p").WithMultipart().WithFormField("key", newKey).Expect().Status(404)
}
