package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// ── geoetl://jobs ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		"geoetl://jobs",
		"All ETL Jobs",
		mcp.WithMIMEType("application/json"),
	), s.handleJobsResource)

	// ── geoetl://job/{jobId}/runs ──────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"geoetl://job/{jobId}/runs",
			"Recent Runs of a Job",
		),
		s.handleJobRunsResource,
	)
}

func (s *Server) handleJobsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	jobs, err := s.etl.ListJobs()
	if err != nil {
		return nil, err
	}

	type jobSummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		SourceType string `json:"sourceType"`
		Table      string `json:"table"`
		LastStatus string `json:"lastStatus"`
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, jobSummary{
			ID:         j.ID,
			Name:       j.Name,
			SourceType: j.SourceType,
			Table:      j.Target.Table,
			LastStatus: j.LastStatus,
		})
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "geoetl://jobs",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleJobRunsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	jobID := extractJobIDFromURI(uri)
	if jobID == "" {
		return nil, fmt.Errorf("could not extract jobId from URI: %s", uri)
	}

	logs, err := s.etl.ListRunLogs(jobID)
	if err != nil {
		return nil, err
	}

	data, _ := json.MarshalIndent(logs, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// extractJobIDFromURI extracts the job ID from "geoetl://job/{id}/runs".
func extractJobIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "geoetl://job/")
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, "/runs")
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
