package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("import_shapefiles",
		mcp.WithPromptDescription("Set up a job that loads zipped shapefiles into a database table"),
		mcp.WithArgument("glob",
			mcp.ArgumentDescription("Glob matching the .zip archives"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("table",
			mcp.ArgumentDescription("Destination table name"),
			mcp.RequiredArgument(),
		),
	), s.handleImportShapefilesPrompt)
}

func (s *Server) handleImportShapefilesPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	glob := req.Params.Arguments["glob"]
	table := req.Params.Arguments["table"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Load %s into %s", glob, table),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Load the shapefile archives matching %q into the table %q. Follow these steps:

1. Call preview_etl_source with sourceType "shapefile" and {"glob": %q} to see the feature properties.
2. Pick the properties worth keeping and check them with resolve_fields.
3. Call create_etl_job with that definition in the source config and a target whose table is %q.
4. Run the job with run_etl_job and report rows written and any skipped archives.

Features are reprojected to EPSG:4326 unless a "projection" is set in the source config.`, glob, table, glob, table),
				},
			},
		},
	}, nil
}
