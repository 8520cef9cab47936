package httpapi

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mdconv/kit"
)

// maxMCPWait caps how long mdconv_convert blocks when asked to wait.
const maxMCPWait = 5 * time.Minute

// registerMCP registers the mdconv tools on srv.
func (s *Server) registerMCP(srv *mcp.Server) {
	s.registerConvertTool(srv)
	s.registerStatusTool(srv)
	s.registerMarkdownTool(srv)
	s.registerFormatsTool(srv)
}

func (s *Server) endpoint(name string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Logging(s.logger, name))(ep)
}

// --- convert ---

type convertReq struct {
	Filename string `json:"filename"`
	Content  string `json:"content_base64"`
	DocType  string `json:"doc_type"`
	Wait     bool   `json:"wait"`
}

func (s *Server) registerConvertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mdconv_convert",
		Description: "Convert a document (pdf, docx, odt or image) to Markdown. Returns the job status; set wait to block until the conversion finishes.",
		InputSchema: kit.InputSchema(map[string]any{
			"filename":       map[string]any{"type": "string", "description": "Original file name, used to detect the format"},
			"content_base64": map[string]any{"type": "string", "description": "File content, standard base64"},
			"doc_type":       map[string]any{"type": "string", "enum": []string{"pdf", "docx", "odt", "image"}, "description": "Optional type hint"},
			"wait":           map[string]any{"type": "boolean", "description": "Wait for the conversion and include the Markdown"},
		}, []string{"filename", "content_base64"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*convertReq)
		if r.Filename == "" || r.Content == "" {
			return nil, errors.New("filename and content_base64 are required")
		}
		body := base64.NewDecoder(base64.StdEncoding, strings.NewReader(r.Content))
		doc, err := s.conv.Submit(ctx, r.Filename, body, r.DocType)
		if err != nil {
			return nil, err
		}
		if !r.Wait {
			return doc.Payload(), nil
		}
		wctx, cancel := context.WithTimeout(ctx, maxMCPWait)
		defer cancel()
		done, err := s.waitDone(wctx, doc.ID)
		if err != nil {
			return nil, err
		}
		return done.Payload(), nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeArgs[convertReq])
}

// --- status ---

type idReq struct {
	ID string `json:"id"`
}

var idSchema = kit.InputSchema(map[string]any{
	"id": map[string]any{"type": "string", "description": "Document id returned by mdconv_convert"},
}, []string{"id"})

func (s *Server) registerStatusTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mdconv_status",
		Description: "Get the status of a conversion job.",
		InputSchema: idSchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		doc, err := s.document(ctx, req.(*idReq).ID)
		if err != nil {
			return nil, err
		}
		return listPayload(doc), nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeArgs[idReq])
}

// --- markdown ---

func (s *Server) registerMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mdconv_markdown",
		Description: "Get the Markdown of a completed conversion.",
		InputSchema: idSchema,
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		doc, err := s.completed(ctx, req.(*idReq).ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"id": doc.ID, "markdown": doc.Markdown}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), kit.DecodeArgs[idReq])
}

// --- formats ---

func (s *Server) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mdconv_formats",
		Description: "List the accepted file extensions and type hints.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}

	endpoint := func(context.Context, any) (any, error) {
		return formatsResponse(), nil
	}

	decode := func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.endpoint(tool.Name, endpoint), decode)
}
