package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type Radar struct {
	RadarID   string `json:"radar_id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	RepoCount int    `json:"repo_count"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Limit   int    `json:"limit"`
	} `json:"error"`
}

type IntegrationTestSuite struct {
	suite.Suite
	baseURL string
	userID  string
	client  *http.Client
}

func (suite *IntegrationTestSuite) SetupSuite() {
	suite.baseURL = "http://localhost:8080"
	suite.userID = fmt.Sprintf("it-user-%d", time.Now().UnixNano())
	suite.client = &http.Client{Timeout: 10 * time.Second}
	suite.waitForService()
}

func (suite *IntegrationTestSuite) waitForService() {
	for i := 0; i < 30; i++ {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			fmt.Println("✅ Service is ready!")
			return
		}
		fmt.Printf("⏳ Waiting for service... (attempt %d/30)\n", i+1)
		time.Sleep(1 * time.Second)
	}
	suite.T().Fatal("❌ Service failed to start within 30 seconds")
}

func (suite *IntegrationTestSuite) doRequest(method, path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequest(method, suite.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", suite.userID)
	return suite.client.Do(req)
}

func (suite *IntegrationTestSuite) createRadar(name string) (Radar, *http.Response) {
	resp, err := suite.doRequest("POST", "/radars", map[string]string{"name": name})
	assert.NoError(suite.T(), err)
	var out struct {
		Radar Radar `json:"radar"`
	}
	if resp.StatusCode == http.StatusCreated {
		assert.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&out))
	}
	return out.Radar, resp
}

func (suite *IntegrationTestSuite) addRepo(radarID string, repoID int64) *http.Response {
	resp, err := suite.doRequest("POST", "/memberships/add", map[string]any{"radar_id": radarID, "repo_id": repoID})
	assert.NoError(suite.T(), err)
	return resp
}

func (suite *IntegrationTestSuite) listRadars() []Radar {
	resp, err := suite.doRequest("GET", "/radars", nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)
	var out struct {
		Radars []Radar `json:"radars"`
	}
	assert.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&out))
	return out.Radars
}

func (suite *IntegrationTestSuite) TestFullFlow() {
	t := suite.T()

	// A fresh user has no radars and can create one.
	assert.Len(t, suite.listRadars(), 0)

	radar, resp := suite.createRadar("Frontend")
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "Should create radar successfully")
	assert.Equal(t, "Frontend", radar.Name)
	fmt.Println("✅ Radar created successfully")

	radars := suite.listRadars()
	assert.Len(t, radars, 1)
	assert.Equal(t, 0, radars[0].RepoCount, "new radar starts empty")

	// Fill the radar to its per-radar limit.
	for repoID := int64(1); repoID <= 25; repoID++ {
		resp := suite.addRepo(radar.RadarID, repoID)
		assert.Equal(t, http.StatusCreated, resp.StatusCode, "add %d should succeed", repoID)
	}
	fmt.Println("✅ Radar filled to 25 repos")

	resp = suite.addRepo(radar.RadarID, 26)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var limitErr errorBody
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&limitErr))
	assert.Equal(t, "REPO_LIMIT_EXCEEDED", limitErr.Error.Code)
	assert.Equal(t, 25, limitErr.Error.Limit)

	radars = suite.listRadars()
	assert.Equal(t, 25, radars[0].RepoCount, "count unchanged after a rejected add")
	fmt.Println("✅ Per-radar limit enforced")

	// A second radar filled to 25 exhausts the 50-repo total.
	second, resp := suite.createRadar("Backend")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	for repoID := int64(100); repoID < 125; repoID++ {
		resp := suite.addRepo(second.RadarID, repoID)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	third, resp := suite.createRadar("Infra")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = suite.addRepo(third.RadarID, 999)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	limitErr = errorBody{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&limitErr))
	assert.Equal(t, "TOTAL_REPO_LIMIT_EXCEEDED", limitErr.Error.Code)
	assert.Equal(t, 50, limitErr.Error.Limit)
	fmt.Println("✅ Total repo limit enforced")

	// Duplicate membership is a distinct error.
	resp = suite.addRepo(radar.RadarID, 1)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var dupErr errorBody
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&dupErr))
	assert.Equal(t, "DUPLICATE_MEMBERSHIP", dupErr.Error.Code)

	// Reverse lookup.
	resp, err := suite.doRequest("GET", fmt.Sprintf("/memberships/radarsContaining?repo_id=%d", 1), nil)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var containing struct {
		RadarIDs []string `json:"radar_ids"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&containing))
	assert.Equal(t, []string{radar.RadarID}, containing.RadarIDs)

	// Removing is idempotent.
	for i := 0; i < 2; i++ {
		resp, err := suite.doRequest("POST", "/memberships/remove", map[string]any{"radar_id": radar.RadarID, "repo_id": int64(1)})
		assert.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	radars = suite.listRadars()
	assert.Equal(t, 24, radars[0].RepoCount)
	fmt.Println("✅ Idempotent remove verified")

	// Radar count limit: radars 4 and 5 succeed, the 6th is rejected.
	_, resp = suite.createRadar("Fourth")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_, resp = suite.createRadar("Fifth")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	_, resp = suite.createRadar("Sixth")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	limitErr = errorBody{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&limitErr))
	assert.Equal(t, "RADAR_LIMIT_EXCEEDED", limitErr.Error.Code)
	assert.Equal(t, 5, limitErr.Error.Limit)
	assert.Len(t, suite.listRadars(), 5, "radar list unchanged after rejected create")
	fmt.Println("✅ Radar limit enforced")

	// Rename and delete, with cascade.
	resp, err = suite.doRequest("POST", "/radars/rename", map[string]string{"radar_id": third.RadarID, "name": "Infrastructure"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = suite.doRequest("POST", "/radars/delete", map[string]string{"radar_id": second.RadarID})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	radars = suite.listRadars()
	assert.Len(t, radars, 4)
	for _, rc := range radars {
		assert.NotEqual(t, second.RadarID, rc.RadarID)
	}
	fmt.Println("✅ Delete cascades memberships")
}

func (suite *IntegrationTestSuite) TestValidationAndAuth() {
	t := suite.T()

	// Missing user id.
	req, err := http.NewRequest("GET", suite.baseURL+"/radars", nil)
	assert.NoError(t, err)
	resp, err := suite.client.Do(req)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Empty name never reaches the store.
	_, resp = suite.createRadar("   ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Renaming a radar that does not exist.
	resp, err = suite.doRequest("POST", "/radars/rename", map[string]string{"radar_id": "00000000-0000-0000-0000-000000000000", "name": "Ghost"})
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test requires a running service")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
