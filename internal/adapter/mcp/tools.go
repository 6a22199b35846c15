package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/domain/consultation"
	"github.com/Strob0t/MedForge/internal/service"
)

// maxToolWait bounds how long start_consultation with wait=true blocks.
const maxToolWait = 2 * time.Minute

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.startConsultationTool(),
		s.getConsultationStatusTool(),
		s.cancelConsultationTool(),
		s.quickCheckTool(),
		s.analyzeComplexityTool(),
	)
}

func (s *Server) startConsultationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("start_consultation",
		mcplib.WithDescription("Start a multi-agent medical consultation. Returns the pending consultation, or the final result when wait is true."),
		mcplib.WithObject("request",
			mcplib.Required(),
			mcplib.Description("Consultation request: patient, symptoms, vitals, labs, imaging, urgency, consent and purpose"),
		),
		mcplib.WithBoolean("wait",
			mcplib.Description("Block until the consultation finishes"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleStartConsultation}
}

func (s *Server) getConsultationStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_consultation_status",
		mcplib.WithDescription("Get the progress or final result of a consultation"),
		mcplib.WithString("consultation_id",
			mcplib.Required(),
			mcplib.Description("The consultation ID returned by start_consultation"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleGetConsultationStatus}
}

func (s *Server) cancelConsultationTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cancel_consultation",
		mcplib.WithDescription("Cancel an in-flight consultation"),
		mcplib.WithString("consultation_id",
			mcplib.Required(),
			mcplib.Description("The consultation to cancel"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCancelConsultation}
}

func (s *Server) quickCheckTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("quick_check",
		mcplib.WithDescription("Triage case complexity from symptom count, urgency and comorbidity count"),
		mcplib.WithNumber("symptom_count", mcplib.Required(), mcplib.Description("Number of presenting symptoms")),
		mcplib.WithString("urgency",
			mcplib.Enum(string(complexity.UrgencyRoutine), string(complexity.UrgencyUrgent), string(complexity.UrgencyEmergent)),
			mcplib.Description("Clinical urgency tier"),
		),
		mcplib.WithNumber("comorbidity_count", mcplib.Description("Number of known comorbidities")),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleQuickCheck}
}

func (s *Server) analyzeComplexityTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("analyze_complexity",
		mcplib.WithDescription("Score case complexity from full factors and recommend an agent count"),
		mcplib.WithObject("factors",
			mcplib.Required(),
			mcplib.Description("Complexity factors: symptom_count, symptom_severity, patient_age, urgency, ..."),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAnalyzeComplexity}
}

func (s *Server) handleStartConsultation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Consultations == nil {
		return mcplib.NewToolResultError("consultation service not configured"), nil
	}
	args := req.GetArguments()
	var creq consultation.Request
	if err := decodeArg(args, "request", &creq); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}

	pending, err := s.deps.Consultations.StartConsultation(ctx, &creq)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start consultation", err), nil
	}
	if wait, _ := args["wait"].(bool); !wait {
		return toolResultJSON(pending)
	}

	wctx, cancel := context.WithTimeout(ctx, maxToolWait)
	defer cancel()
	res, err := s.deps.Consultations.PollConsultationUntilComplete(wctx, pending.ConsultationID, service.PollOptions{})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("consultation %s did not complete", pending.ConsultationID), err,
		), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleGetConsultationStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Consultations == nil {
		return mcplib.NewToolResultError("consultation service not configured"), nil
	}
	id, ok := req.GetArguments()["consultation_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("consultation_id is required"), nil
	}
	out, err := s.deps.Consultations.GetConsultationStatus(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get consultation %s", id), err), nil
	}
	return toolResultJSON(out)
}

func (s *Server) handleCancelConsultation(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Consultations == nil {
		return mcplib.NewToolResultError("consultation service not configured"), nil
	}
	id, ok := req.GetArguments()["consultation_id"].(string)
	if !ok || id == "" {
		return mcplib.NewToolResultError("consultation_id is required"), nil
	}
	res, err := s.deps.Consultations.CancelConsultation(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to cancel consultation %s", id), err), nil
	}
	return toolResultJSON(res)
}

func (s *Server) handleQuickCheck(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Analyzer == nil {
		return mcplib.NewToolResultError("complexity analyzer not configured"), nil
	}
	args := req.GetArguments()
	symptoms, ok := args["symptom_count"].(float64)
	if !ok || symptoms < 0 {
		return mcplib.NewToolResultError("symptom_count must be a non-negative number"), nil
	}
	comorbidities, _ := args["comorbidity_count"].(float64)
	if comorbidities < 0 {
		return mcplib.NewToolResultError("comorbidity_count must be non-negative"), nil
	}
	urgency, _ := args["urgency"].(string)
	if !complexity.ValidUrgency(complexity.Urgency(urgency)) {
		return mcplib.NewToolResultError(fmt.Sprintf("invalid urgency %q", urgency)), nil
	}
	return toolResultJSON(s.deps.Analyzer.QuickCheck(int(symptoms), complexity.Urgency(urgency), int(comorbidities)))
}

func (s *Server) handleAnalyzeComplexity(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Analyzer == nil {
		return mcplib.NewToolResultError("complexity analyzer not configured"), nil
	}
	var f complexity.Factors
	if err := decodeArg(req.GetArguments(), "factors", &f); err != nil {
		return mcplib.NewToolResultError(err.Error()), nil
	}
	if !complexity.ValidUrgency(f.Urgency) || !complexity.ValidProgression(f.Progression) {
		return mcplib.NewToolResultError("invalid urgency or progression"), nil
	}
	score := s.deps.Analyzer.Analyze(f)
	return toolResultJSON(struct {
		complexity.Score
		Level complexity.Level `json:"level"`
	}{score, score.Level()})
}

// decodeArg re-decodes an object argument into v.
func decodeArg(args map[string]any, name string, v any) error {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fmt.Errorf("%s is required", name)
	}
	if _, isObj := raw.(map[string]any); !isObj {
		return fmt.Errorf("%s must be an object", name)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%s.%s has the wrong type", name, typeErr.Field)
		}
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	return nil
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
