// SPDX-License-Identifier: MPL-2.0

package checker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"instagent/internal/config"
	"instagent/internal/store"
)

// checkConfig flags credentials still holding their shipped placeholder
// values, plus obviously broken API keys.
func (c *Checker) checkConfig() bool {
	var problems []string
	for _, field := range c.cfg.Placeholders() {
		switch field {
		case "instagram.username":
			problems = append(problems, "Instagram username is default value")
		case "instagram.password":
			problems = append(problems, "Instagram password is default value")
		case "instagram.target_account":
			problems = append(problems, "Target account is default value")
		case "genai.api_key":
			problems = append(problems, "GenAI API key is default value")
		}
	}
	if key := c.cfg.GenAI.APIKey; key != "" && key != config.PlaceholderAPIKey && len(key) < 10 {
		problems = append(problems, "GenAI API key appears invalid")
	}

	if len(problems) > 0 {
		c.log("Configuration Validation", false, strings.Join(problems, "; "))
		return false
	}
	c.log("Configuration Validation", true, "Configuration appears valid")
	return true
}

func (c *Checker) checkDirectories() bool {
	dirs := []string{c.cfg.VideosDir(), c.cfg.TranscriptsDir(), c.cfg.Pipeline.DataDir}
	allExist := true

	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			c.log("Directory "+dir, true, "Directory exists")
		} else {
			c.log("Directory "+dir, false, "Directory missing")
			allExist = false
		}
	}
	return allExist
}

// checkStore verifies the vector index exists and counts its documents.
// A missing database file means no pipeline run has indexed anything yet;
// opening the store would create an empty file as a side effect, so stat
// first.
func (c *Checker) checkStore(ctx context.Context) bool {
	path := c.cfg.StorePath()
	if _, err := os.Stat(path); err != nil {
		c.log("Vector Store Connection", false, fmt.Sprintf("Collection %q not found", store.DefaultCollection))
		return false
	}

	st, err := store.Open(path)
	if err != nil {
		c.log("Vector Store Connection", false, fmt.Sprintf("Error: %v", err))
		return false
	}
	defer func() { _ = st.Close() }() // read-only access

	count, err := st.Count(ctx, store.DefaultCollection)
	if err != nil {
		c.log("Vector Store Connection", false, fmt.Sprintf("Error: %v", err))
		return false
	}

	c.log("Vector Store Connection", true, fmt.Sprintf("Collection found with %d documents", count))
	return true
}

func (c *Checker) checkHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", http.NoBody)
	if err != nil {
		c.log("Service Health Check", false, fmt.Sprintf("Error: %v", err))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log("Service Health Check", false, "Service not running or unreachable")
		return false
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		c.log("Service Health Check", false, fmt.Sprintf("HTTP %d", resp.StatusCode))
		return false
	}

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		c.log("Service Health Check", false, fmt.Sprintf("Error: %v", err))
		return false
	}
	if !strings.Contains(body.Message, "Instagram AI Agent") {
		c.log("Service Health Check", false, fmt.Sprintf("Unexpected response: %s", body.Message))
		return false
	}

	c.log("Service Health Check", true, "Service is running")
	return true
}

func (c *Checker) checkQuery(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, queryCheckTimeout)
	defer cancel()

	params := url.Values{"question": {"test query"}, "top_k": {"1"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query?"+params.Encode(), http.NoBody)
	if err != nil {
		c.log("Query Endpoint", false, fmt.Sprintf("Error: %v", err))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log("Query Endpoint", false, fmt.Sprintf("Request timeout (>%ds)", int(queryCheckTimeout.Seconds())))
		} else {
			c.log("Query Endpoint", false, fmt.Sprintf("Error: %v", err))
		}
		return false
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		c.log("Query Endpoint", false, httpFailureDetail(resp))
		return false
	}

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		c.log("Query Endpoint", false, fmt.Sprintf("Error: %v", err))
		return false
	}
	if _, ok := body["answer"]; !ok {
		c.log("Query Endpoint", false, fmt.Sprintf("No 'answer' in response: %v", body))
		return false
	}

	c.log("Query Endpoint", true, "Query executed successfully")
	return true
}

// checkUpdate exercises the indexing pipeline with limit=1 to keep the
// run as small as possible.
func (c *Checker) checkUpdate(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, updateCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update?limit=1", http.NoBody)
	if err != nil {
		c.log("Update Endpoint (dry run)", false, fmt.Sprintf("Error: %v", err))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log("Update Endpoint (dry run)", false, fmt.Sprintf("Request timeout (>%ds)", int(updateCheckTimeout.Seconds())))
		} else {
			c.log("Update Endpoint (dry run)", false, fmt.Sprintf("Error: %v", err))
		}
		return false
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		c.log("Update Endpoint (dry run)", false, httpFailureDetail(resp))
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		c.log("Update Endpoint (dry run)", false, fmt.Sprintf("Error: %v", err))
		return false
	}
	if !strings.Contains(body.Status, "exécuté") {
		c.log("Update Endpoint (dry run)", false, fmt.Sprintf("Unexpected response: %s", body.Status))
		return false
	}

	c.log("Update Endpoint (dry run)", true, "Update completed successfully")
	return true
}

// httpFailureDetail summarizes a non-200 response, body included, for
// the check message.
func httpFailureDetail(resp *http.Response) string {
	text, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil || len(text) == 0 {
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
}
