package hierarchy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func setupServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := setupEngine(t)
	router := mux.NewRouter()
	NewHandlers(env.engine).RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return env, server
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHandlers_CreateAndGet(t *testing.T) {
	_, server := setupServer(t)

	resp := doJSON(t, "POST", server.URL+"/v1/roles", map[string]string{
		"code": "role.admin",
		"name": "Admin",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}
	var created Node
	decodeBody(t, resp, &created)
	if created.ID == 0 || created.Code != "role.admin" {
		t.Errorf("Unexpected created node: %+v", created)
	}

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d", server.URL, created.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var fetched Node
	decodeBody(t, resp, &fetched)
	if fetched.Code != "role.admin" {
		t.Errorf("Expected role.admin, got %s", fetched.Code)
	}

	resp = doJSON(t, "GET", server.URL+"/v1/roles/code/role.admin", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 by code, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlers_CreateValidation(t *testing.T) {
	_, server := setupServer(t)

	// Missing code.
	resp := doJSON(t, "POST", server.URL+"/v1/roles", map[string]string{"name": "No Code"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing code, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Duplicate code conflicts.
	first := doJSON(t, "POST", server.URL+"/v1/roles", map[string]string{"code": "role.dup", "name": "A"})
	first.Body.Close()
	resp = doJSON(t, "POST", server.URL+"/v1/roles", map[string]string{"code": "role.dup", "name": "B"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate code, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlers_ErrorStatusMapping(t *testing.T) {
	env, server := setupServer(t)

	if _, err := http.Get(server.URL + "/v1/roles/999999"); err != nil {
		t.Fatal(err)
	}
	resp := doJSON(t, "GET", server.URL+"/v1/roles/999999", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing node, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	parent := addNode(t, env, "role.p")
	child := addNode(t, env, "role.c")

	// Self edge is a 400.
	resp = doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/descendants", server.URL, parent.ID),
		map[string]int64{"descendant_id": parent.ID})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for self edge, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// First link works and reports the created edge, the duplicate conflicts.
	resp = doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/descendants", server.URL, parent.ID),
		map[string]int64{"descendant_id": child.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 adding edge, got %d", resp.StatusCode)
	}
	var edge Edge
	decodeBody(t, resp, &edge)
	if edge.AncestorID != parent.ID || edge.DescendantID != child.ID || edge.Depth != 1 {
		t.Errorf("Unexpected created edge: %+v", edge)
	}
	resp = doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/descendants", server.URL, parent.ID),
		map[string]int64{"descendant_id": child.ID})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate edge, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Closing the loop is a 400.
	resp = doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/descendants", server.URL, child.ID),
		map[string]int64{"descendant_id": parent.ID})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for cycle, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlers_ArchiveRecoverFlow(t *testing.T) {
	env, server := setupServer(t)
	node := addNode(t, env, "role.flow")

	resp := doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/archive", server.URL, node.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 archiving, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d", server.URL, node.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected archived node 404 on live read, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", server.URL+"/v1/roles/archived", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 listing archived, got %d", resp.StatusCode)
	}
	var archived Page[*Node]
	decodeBody(t, resp, &archived)
	if archived.Total != 1 {
		t.Errorf("Expected 1 archived node, got %d", archived.Total)
	}

	resp = doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/recover", server.URL, node.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 recovering, got %d", resp.StatusCode)
	}
	var recovered Node
	decodeBody(t, resp, &recovered)
	if recovered.Archived {
		t.Error("Expected recovered node live")
	}
}

func TestHandlers_UpdateAndDelete(t *testing.T) {
	env, server := setupServer(t)
	node := addNode(t, env, "role.mut")

	resp := doJSON(t, "PUT", fmt.Sprintf("%s/v1/roles/%d", server.URL, node.ID),
		map[string]string{"name": "Renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 updating, got %d", resp.StatusCode)
	}
	var snapshot UpdatedSnapshot
	decodeBody(t, resp, &snapshot)
	if snapshot.After == nil || snapshot.After.Name != "Renamed" {
		t.Errorf("Unexpected snapshot: %+v", snapshot)
	}

	resp = doJSON(t, "DELETE", server.URL+"/v1/roles/code/role.mut", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 deleting, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "DELETE", fmt.Sprintf("%s/v1/roles/%d", server.URL, node.ID), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 on double delete, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlers_ListingAndBatch(t *testing.T) {
	env, server := setupServer(t)
	a := addNode(t, env, "role.a")
	b := addNode(t, env, "role.b")
	c := addNode(t, env, "role.c")
	if err := env.engine.AddDescendant(context.Background(), a.ID, b.ID); err != nil {
		t.Fatalf("AddDescendant failed: %v", err)
	}

	resp := doJSON(t, "GET", server.URL+"/v1/roles?page=1&size=10", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 listing, got %d", resp.StatusCode)
	}
	var page Page[*Node]
	decodeBody(t, resp, &page)
	if page.Total != 3 {
		t.Errorf("Expected 3 nodes, got %d", page.Total)
	}

	resp = doJSON(t, "GET", server.URL+"/v1/roles/roots", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 roots, got %d", resp.StatusCode)
	}
	var roots Page[*Node]
	decodeBody(t, resp, &roots)
	if len(roots.Items) != 2 {
		t.Errorf("Expected roots [a c], got %d items", len(roots.Items))
	}

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/batch?ids=%d,%d", server.URL, a.ID, c.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 batch, got %d", resp.StatusCode)
	}
	var batch []*Node
	decodeBody(t, resp, &batch)
	if len(batch) != 2 {
		t.Errorf("Expected 2 batch nodes, got %d", len(batch))
	}

	resp = doJSON(t, "GET", server.URL+"/v1/roles/batch?codes=role.a,role.missing", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 code batch, got %d", resp.StatusCode)
	}
	var codeBatch []*Node
	decodeBody(t, resp, &codeBatch)
	if len(codeBatch) != 1 || codeBatch[0].ID != a.ID {
		t.Errorf("Expected only role.a, got %+v", codeBatch)
	}

	resp = doJSON(t, "GET", server.URL+"/v1/roles/batch", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing batch params, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d/descendants", server.URL, a.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 descendants, got %d", resp.StatusCode)
	}
	var descendants Page[*Node]
	decodeBody(t, resp, &descendants)
	if len(descendants.Items) != 1 || descendants.Items[0].ID != b.ID {
		t.Errorf("Expected descendant b, got %+v", descendants.Items)
	}
}

func TestHandlers_ListAncestors(t *testing.T) {
	env, server := setupServer(t)
	root := addNode(t, env, "root")
	mid := addNode(t, env, "mid")
	leaf := addNode(t, env, "leaf")
	for _, edge := range [][2]int64{{root.ID, mid.ID}, {mid.ID, leaf.ID}} {
		if err := env.engine.AddDescendant(context.Background(), edge[0], edge[1]); err != nil {
			t.Fatalf("AddDescendant failed: %v", err)
		}
	}

	resp := doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d/ancestors", server.URL, leaf.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 ancestors, got %d", resp.StatusCode)
	}
	var ancestors []*Node
	decodeBody(t, resp, &ancestors)
	if len(ancestors) != 2 {
		t.Fatalf("Expected 2 ancestors, got %d", len(ancestors))
	}

	resp = doJSON(t, "GET", server.URL+"/v1/roles/999999/ancestors", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing node, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHandlers_MoveAndAncestorPaths(t *testing.T) {
	env, server := setupServer(t)
	oldParent := addNode(t, env, "old")
	newParent := addNode(t, env, "new")
	child := addNode(t, env, "child")
	if err := env.engine.AddDescendant(context.Background(), oldParent.ID, child.ID); err != nil {
		t.Fatalf("AddDescendant failed: %v", err)
	}

	resp := doJSON(t, "POST", fmt.Sprintf("%s/v1/roles/%d/move", server.URL, child.ID),
		map[string]int64{"original_ancestor_id": oldParent.ID, "target_ancestor_id": newParent.ID})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 moving, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d/ancestor-paths", server.URL, child.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 ancestor paths, got %d", resp.StatusCode)
	}
	var body map[string][]string
	decodeBody(t, resp, &body)
	if len(body["paths"]) != 1 || body["paths"][0] != "new/child" {
		t.Errorf("Expected paths [new/child], got %v", body["paths"])
	}

	// Removing the remaining edge leaves the chain at just the node itself.
	resp = doJSON(t, "DELETE", fmt.Sprintf("%s/v1/roles/%d/descendants/%d", server.URL, newParent.ID, child.ID), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204 removing edge, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", fmt.Sprintf("%s/v1/roles/%d/ancestor-paths", server.URL, child.ID), nil)
	decodeBody(t, resp, &body)
	if len(body["paths"]) != 1 || body["paths"][0] != "child" {
		t.Errorf("Expected paths [child], got %v", body["paths"])
	}
}
