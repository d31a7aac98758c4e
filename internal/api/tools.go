package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/voicetransl/voicetransl-api/internal/api/middleware"
	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// ToolsEndpoint is where the MCP tool server is mounted.
const ToolsEndpoint = "/api/mcp"

// ToolClientHeader carries the admitted client id from the HTTP request
// into tool calls. Values sent by clients are replaced.
const ToolClientHeader = "X-Voicetransl-Client"

// SlotGate is checked before a tool call creates a task.
type SlotGate interface {
	TryAcquire() error
	Release()
}

// TaskLimiter charges task-creating tool calls to the task tier.
type TaskLimiter interface {
	Check(clientID string, taskCreating bool) (bool, ratelimit.Info, ratelimit.Class)
}

// TranslateToolInput is the input of the translate_lrc tool.
type TranslateToolInput struct {
	LRCContent     string `json:"lrc_content"               jsonschema:"Japanese LRC subtitles with [mm:ss.xx] timestamps"`
	TargetLanguage string `json:"target_language,omitempty" jsonschema:"target language: en, zh-cn, zh-tw, ko, ru or fr (default zh-cn)"`
}

// TaskToolInput names a task.
type TaskToolInput struct {
	TaskID string `json:"task_id" jsonschema:"id returned when the task was created"`
}

// ListToolInput filters the list_tasks tool.
type ListToolInput struct {
	TaskType string `json:"task_type,omitempty" jsonschema:"transcription or translation"`
	Status   string `json:"status,omitempty"    jsonschema:"pending, processing, completed, failed or cancelled"`
	Limit    int    `json:"limit,omitempty"     jsonschema:"maximum number of tasks, 1 to 1000 (default 50)"`
	Offset   int    `json:"offset,omitempty"    jsonschema:"number of tasks to skip"`
}

type toolSet struct {
	tasks        TaskManager
	translations *TranslationHandler
	slots        SlotGate
	limits       TaskLimiter
	logger       *slog.Logger
}

// NewToolServer exposes translation and task queries as MCP tools. slots
// and limits may be nil.
func NewToolServer(
	tasks TaskManager,
	translations *TranslationHandler,
	slots SlotGate,
	limits TaskLimiter,
	version string,
	logger *slog.Logger,
) *mcp.Server {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for tool server")
	}
	ts := &toolSet{
		tasks:        tasks,
		translations: translations,
		slots:        slots,
		limits:       limits,
		logger:       logger.With(slog.String("component", "mcp_tools")),
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "voicetransl-api", Version: version}, nil)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "translate_lrc",
		Description: "Start translating Japanese LRC subtitles. Returns a task id to poll with get_task.",
	}, ts.translate)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task",
		Description: "Get the status and progress of a task.",
	}, ts.status)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_task_result",
		Description: "Get the result of a task, or its status if it has not completed.",
	}, ts.result)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_tasks",
		Description: "List tasks, newest first.",
	}, ts.list)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_task",
		Description: "Cancel a pending or running task.",
	}, ts.cancel)
	return server
}

// NewToolHandler serves server over the streamable HTTP transport. The
// client id set by the admission middleware is forwarded to tool calls in
// ToolClientHeader.
func NewToolHandler(server *mcp.Server) http.Handler {
	h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(ToolClientHeader)
		if id := shared.GetClientID(r.Context()); id != "" {
			r.Header.Set(ToolClientHeader, id)
		}
		h.ServeHTTP(w, r)
	})
}

// toolClientID resolves the caller of a tool. Calls over HTTP carry the id
// in a header; in-process sessions fall back to the context.
func toolClientID(ctx context.Context, req *mcp.CallToolRequest) string {
	if req != nil && req.Extra != nil && req.Extra.Header != nil {
		if id := req.Extra.Header.Get(ToolClientHeader); id != "" {
			return id
		}
	}
	if id := shared.GetClientID(ctx); id != "" {
		return id
	}
	return "unknown"
}

func (ts *toolSet) translate(ctx context.Context, call *mcp.CallToolRequest, in TranslateToolInput) (*mcp.CallToolResult, any, error) {
	req := TranslationRequest{LRCContent: in.LRCContent, TargetLanguage: in.TargetLanguage}
	if msg := ts.translations.validate(&req); msg != "" {
		return nil, nil, errors.New(msg)
	}

	if ts.limits != nil {
		clientID := toolClientID(ctx, call)
		if ok, info, _ := ts.limits.Check(clientID, true); !ok {
			retryAfter := info.RetryAfter
			if retryAfter <= 0 {
				retryAfter = middleware.DefaultRetryAfter
			}
			ts.logger.WarnContext(ctx, "tool call rate limited", "client_id", clientID, "retry_after", retryAfter)
			return errorResult(shared.ErrorResponse{
				Error:      middleware.RateLimitedMessage,
				Reason:     shared.ReasonRateLimited,
				RetryAfter: retryAfter,
			})
		}
	}

	if ts.slots != nil {
		switch err := ts.slots.TryAcquire(); {
		case err == nil:
			defer ts.slots.Release()
		case errors.Is(err, resource.ErrNoCapacity):
			ts.logger.DebugContext(ctx, "no free slot, task will queue")
		default:
			ts.logger.WarnContext(ctx, "tool task refused", "error", err)
			return errorResult(shared.ErrorResponse{
				Error:  toolSlotMessage(err),
				Reason: shared.ReasonOverloaded,
			})
		}
	}

	id, err := ts.tasks.Create(task.KindTranslation, ts.translations.input(req), ts.translations.unit)
	if err != nil {
		return nil, nil, errors.New(GetSafeErrorMessage(err))
	}
	ts.logger.InfoContext(ctx, "translation task created", "task_id", id, "target_language", req.TargetLanguage)
	return jsonResult(CreateTaskResponse{
		TaskID:  id,
		Status:  task.StatusPending,
		Message: "Translation task created successfully",
	})
}

func (ts *toolSet) status(_ context.Context, _ *mcp.CallToolRequest, in TaskToolInput) (*mcp.CallToolResult, any, error) {
	snap, err := ts.tasks.Status(in.TaskID)
	if err != nil {
		return nil, nil, errors.New(GetSafeErrorMessage(err))
	}
	return jsonResult(snap)
}

func (ts *toolSet) result(_ context.Context, _ *mcp.CallToolRequest, in TaskToolInput) (*mcp.CallToolResult, any, error) {
	out, err := ts.tasks.Result(in.TaskID)
	if err != nil {
		return nil, nil, errors.New(GetSafeErrorMessage(err))
	}
	return jsonResult(out)
}

func (ts *toolSet) list(_ context.Context, _ *mcp.CallToolRequest, in ListToolInput) (*mcp.CallToolResult, any, error) {
	filter := task.ListFilter{Limit: task.DefaultListLimit, Offset: in.Offset}
	if in.TaskType != "" {
		kind, err := task.ParseKind(in.TaskType)
		if err != nil {
			return nil, nil, fmt.Errorf("Invalid task type: %s", in.TaskType)
		}
		filter.Kind = kind
	}
	if in.Status != "" {
		status, err := task.ParseStatus(in.Status)
		if err != nil {
			return nil, nil, fmt.Errorf("Invalid status: %s", in.Status)
		}
		filter.Status = status
	}
	if in.Limit != 0 {
		if in.Limit < 1 || in.Limit > task.MaxListLimit {
			return nil, nil, fmt.Errorf("Invalid limit: must be between 1 and %d", task.MaxListLimit)
		}
		filter.Limit = in.Limit
	}
	if in.Offset < 0 {
		return nil, nil, errors.New("Invalid offset: must not be negative")
	}

	tasks := ts.tasks.List(filter)
	return jsonResult(TaskListResponse{Tasks: tasks, Total: len(tasks), Limit: filter.Limit, Offset: filter.Offset})
}

func (ts *toolSet) cancel(_ context.Context, _ *mcp.CallToolRequest, in TaskToolInput) (*mcp.CallToolResult, any, error) {
	cancelled, err := ts.tasks.Cancel(in.TaskID)
	if err != nil {
		return nil, nil, errors.New(GetSafeErrorMessage(err))
	}
	msg := fmt.Sprintf("Task %s cancelled successfully", in.TaskID)
	if !cancelled {
		msg = fmt.Sprintf("Task %s could not be cancelled (already completed or failed)", in.TaskID)
	}
	return jsonResult(MessageResponse{Message: msg})
}

// jsonResult renders v as the text content of a tool result.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(b)}}}, nil, nil
}

// errorResult reports a refused call with the same body the HTTP API sends.
func errorResult(body shared.ErrorResponse) (*mcp.CallToolResult, any, error) {
	res, _, err := jsonResult(body)
	if err != nil {
		return nil, nil, err
	}
	res.IsError = true
	return res, nil, nil
}

func toolSlotMessage(err error) string {
	if errors.Is(err, resource.ErrOverloaded) {
		return middleware.OverloadedMessage
	}
	return GetSafeErrorMessage(err)
}
