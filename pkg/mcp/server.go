package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"ksmeta/pkg/config"
)

const (
	serverName    = "ksmeta"
	serverVersion = "1.0.0"
)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
}

// Server exposes the resolver and pipeline as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithLogging(),
	)

	s := &Server{
		mcpServer:  mcpServer,
		cfg:        cfg,
		log:        cfg.Logger.WithField("component", "mcp"),
		jobManager: NewJobManager(),
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	// resolve_url - Resolve a share link to its canonical identifier
	resolveURLTool := mcp.NewTool("resolve_url",
		mcp.WithDescription("Resolve a Kuaishou share link to its video identifier, following short-link redirects if needed"),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The share link to resolve (long-form or v.kuaishou.com short link)"),
		),
	)
	s.mcpServer.AddTool(resolveURLTool, s.handleResolveURL)

	// fetch_video - Fetch metadata for a single identifier
	fetchVideoTool := mcp.NewTool("fetch_video",
		mcp.WithDescription("Fetch the metadata record for a resolved video identifier"),
		mcp.WithString("video_id",
			mcp.Required(),
			mcp.Description("The video identifier returned by resolve_url"),
		),
	)
	s.mcpServer.AddTool(fetchVideoTool, s.handleFetchVideo)

	// start_batch - Start a background batch over an input file
	startBatchTool := mcp.NewTool("start_batch",
		mcp.WithDescription("Start a background batch over an input file of share links. Returns immediately with a job ID."),
		mcp.WithString("input_path",
			mcp.Required(),
			mcp.Description("Path to a line-oriented input file ('[index,]url' per line)"),
		),
		mcp.WithString("output_path",
			mcp.Description("CSV output path (defaults to input path with a .csv suffix)"),
		),
		mcp.WithBoolean("resume",
			mcp.Description("Serve previously successful rows from the local result store"),
		),
	)
	s.mcpServer.AddTool(startBatchTool, s.handleStartBatch)

	// get_job_status - Check status of a batch job
	getJobStatusTool := mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status of a batch job"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(getJobStatusTool, s.handleGetJobStatus)

	// cancel_job - Cancel a running batch job
	cancelJobTool := mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a running batch job; in-flight rows finish with a terminal result"),
		mcp.WithString("job_id",
			mcp.Required(),
			mcp.Description("The job ID returned by start_batch"),
		),
	)
	s.mcpServer.AddTool(cancelJobTool, s.handleCancelJob)

	s.log.Infof("Registered %d MCP tools", 5)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		sseServer := server.NewSSEServer(s.mcpServer)
		return sseServer.Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
