package mcpserver

import (
	"context"
	"fmt"

	"geoetl/internal/etl"
	"geoetl/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerETLTools() {
	s.mcp.AddTool(mcp.NewTool("list_etl_sources",
		mcp.WithDescription("List available ETL source types with their configuration schemas"),
	), s.handleListETLSources)

	s.mcp.AddTool(mcp.NewTool("preview_etl_source",
		mcp.WithDescription("Preview records from an ETL source without persisting anything. For shapefile sources this extracts and converts the matched archives."),
		mcp.WithString("sourceType", mcp.Description("Source type"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithNumber("maxRows", mcp.Description("Maximum records to return (default 10)")),
	), s.handlePreviewETLSource)

	s.mcp.AddTool(mcp.NewTool("resolve_fields",
		mcp.WithDescription(`Resolve a field definition list into field names. Entries are bare names or records with a "name" attribute, e.g. ["NAME", {"name":"POP","type":"number"}]`),
		mcp.WithString("definitionJSON", mcp.Description("Definition list as JSON"), mcp.Required()),
	), s.handleResolveFields)

	s.mcp.AddTool(mcp.NewTool("discover_header_fields",
		mcp.WithDescription("Read the header row of a delimited text file and return its field names, with duplicates numbered (id,id → id_1,id_2)"),
		mcp.WithString("filePath", mcp.Description("Absolute path to the file"), mcp.Required()),
		mcp.WithString("delimiter", mcp.Description(`Column delimiter (default ","; "tab" for tab)`)),
	), s.handleDiscoverHeaderFields)

	s.mcp.AddTool(mcp.NewTool("create_etl_job",
		mcp.WithDescription("Create an ETL sync job (source → database table)"),
		mcp.WithString("name", mcp.Description("Unique job name"), mcp.Required()),
		mcp.WithString("sourceType", mcp.Description("ETL source type (use list_etl_sources to see available types)"), mcp.Required()),
		mcp.WithString("sourceConfigJSON", mcp.Description("Source configuration as JSON"), mcp.Required()),
		mcp.WithString("targetJSON", mcp.Description(`Target as JSON: {"driver":"postgres|mysql|sqlite|mongodb","host":"...","port":5432,"database":"...","username":"...","secretKey":"...","table":"..."}`), mcp.Required()),
		mcp.WithString("syncMode", mcp.Description("replace (default) or append")),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, path or glob for file_watch")),
	), s.handleCreateETLJob)

	s.mcp.AddTool(mcp.NewTool("list_etl_jobs",
		mcp.WithDescription("List ETL sync jobs with their last run status"),
	), s.handleListETLJobs)

	s.mcp.AddTool(mcp.NewTool("run_etl_job",
		mcp.WithDescription("🛑 DESTRUCTIVE: Execute an ETL sync job. Replace-mode jobs overwrite the target table. Requires approval."),
		mcp.WithString("jobId", mcp.Description("ETL job ID or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunETLJob)
}

func (s *Server) handleListETLSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.etl.ListSources())
}

func (s *Server) handlePreviewETLSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceType := req.GetString("sourceType", "")
	if sourceType == "" {
		return nil, fmt.Errorf("sourceType is required")
	}
	var cfg etl.SourceConfig
	ok, err := jsonArg(req.GetArguments(), "sourceConfigJSON", &cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("sourceConfigJSON is required")
	}

	preview, err := s.etl.Preview(ctx, sourceType, cfg, req.GetInt("maxRows", 10))
	if err != nil {
		return nil, fmt.Errorf("preview source: %w", err)
	}
	return jsonResult(preview)
}

func (s *Server) handleResolveFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var defs []any
	if _, err := jsonArg(req.GetArguments(), "definitionJSON", &defs); err != nil {
		return nil, err
	}
	fields, err := etl.ResolveFields(defs)
	if err != nil {
		return nil, err
	}
	return jsonResult(fields)
}

func (s *Server) handleDiscoverHeaderFields(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("filePath", "")
	if path == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	delim, err := etl.ParseDelimiter(req.GetString("delimiter", ""))
	if err != nil {
		return nil, err
	}
	fields, err := etl.HeaderFields(path, etl.HeaderOptions{Delimiter: delim})
	if err != nil {
		return nil, err
	}
	return jsonResult(fields)
}

func (s *Server) handleCreateETLJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	input := service.CreateETLJobInput{
		Name:          req.GetString("name", ""),
		SourceType:    req.GetString("sourceType", ""),
		SyncMode:      req.GetString("syncMode", ""),
		TriggerType:   req.GetString("triggerType", ""),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       true,
	}
	if _, err := jsonArg(args, "sourceConfigJSON", &input.SourceConfig); err != nil {
		return nil, err
	}
	if _, err := jsonArg(args, "targetJSON", &input.Target); err != nil {
		return nil, err
	}

	job, err := s.etl.CreateJob(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create ETL job: %w", err)
	}
	return jsonResult(job)
}

func (s *Server) handleListETLJobs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobs, err := s.etl.ListJobs()
	if err != nil {
		return nil, err
	}
	out := make([]jobListing, len(jobs))
	for i, j := range jobs {
		out[i] = jobListing{SyncJob: j, Running: s.etl.IsRunning(j.ID)}
	}
	return jsonResult(out)
}

// jobListing is a stored job plus whether this process is running it now.
type jobListing struct {
	etl.SyncJob
	Running bool `json:"running"`
}

func (s *Server) handleRunETLJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("jobId", "")
	if ref == "" {
		return nil, fmt.Errorf("jobId is required")
	}
	job, err := s.etl.FindJob(ref)
	if err != nil {
		return nil, err
	}

	approved, err := s.approval.Request(ctx, "run_etl_job",
		fmt.Sprintf("Run ETL job %s (%s mode into %s)", job.Name, job.SyncMode, job.Target.Table))
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	result, err := s.etl.RunJob(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("run ETL job: %w", err)
	}
	return jsonResult(result)
}
