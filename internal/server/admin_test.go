package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestAdminGetStatus(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/status")
	if err != nil {
		t.Fatalf("GET /api/v1/status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body ServerStatusBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding status body: %v", err)
	}
	if body.Version == "" {
		t.Error("Version is empty")
	}
	if body.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %d, want >= 0", body.UptimeSeconds)
	}
}

func TestAdminGetStats(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/buckets", strings.NewReader(`{"name":"stats-bucket"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create bucket status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	statsResp, err := http.Get(ts.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("GET /api/v1/stats failed: %v", err)
	}
	defer statsResp.Body.Close()
	if statsResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", statsResp.StatusCode, http.StatusOK)
	}

	var body StorageStatsBody
	if err := json.NewDecoder(statsResp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding stats body: %v", err)
	}
	if body.TotalBuckets < 1 {
		t.Errorf("TotalBuckets = %d, want >= 1", body.TotalBuckets)
	}
}

func TestAdminCreateAndListBuckets(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/buckets", strings.NewReader(`{"name":"admin-bucket"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("create bucket failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create bucket status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var created AdminBucket
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decoding created bucket: %v", err)
	}
	if created.Name != "admin-bucket" {
		t.Errorf("created.Name = %q, want %q", created.Name, "admin-bucket")
	}

	listResp, err := http.Get(ts.URL + "/api/v1/buckets")
	if err != nil {
		t.Fatalf("GET /api/v1/buckets failed: %v", err)
	}
	defer listResp.Body.Close()

	var list ListBucketsBody
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decoding bucket list: %v", err)
	}
	found := false
	for _, b := range list.Buckets {
		if b.Name == "admin-bucket" {
			found = true
		}
	}
	if !found {
		t.Errorf("admin-bucket missing from list: %v", list.Buckets)
	}
}

func TestAdminListObjectsUnknownBucket(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/buckets/does-not-exist/objects")
	if err != nil {
		t.Fatalf("GET objects failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestAdminListObjects(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/objects-bucket", nil)
	resp, _ := client.Do(req)
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/objects-bucket/one.txt", strings.NewReader("one"))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("seed PUT failed: %v", err)
	}
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/api/v1/buckets/objects-bucket/objects")
	if err != nil {
		t.Fatalf("GET objects failed: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", listResp.StatusCode, http.StatusOK)
	}

	var body ListObjectsBody
	if err := json.NewDecoder(listResp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding objects body: %v", err)
	}
	if len(body.Objects) != 1 || body.Objects[0].Key != "one.txt" {
		t.Errorf("Objects = %v, want one.txt", body.Objects)
	}
}
