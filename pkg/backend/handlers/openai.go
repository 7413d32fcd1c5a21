package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mattmillen888/bedrock-proxy/pkg/relay"
	"github.com/mattmillen888/bedrock-proxy/pkg/transform"
	"github.com/mattmillen888/bedrock-proxy/pkg/types"
)

// Routes served by OpenAIHandler
const (
	RouteChatCompletions = "/v1/chat/completions"
	RouteModels          = "/v1/models"
)

// ModelResolver maps requested model names to upstream model ids.
// *bedrock.ModelMapper implements it.
type ModelResolver interface {
	Resolve(model string) (string, bool)
	Aliases() []string
	Fallback() string
}

// OpenAIHandler serves the OpenAI-compatible chat completions and model
// listing endpoints on top of the same upstream client
type OpenAIHandler struct {
	client       Invoker
	models       ModelResolver
	metrics      Metrics
	maxBodyBytes int64
	created      int64
}

func NewOpenAIHandler(client Invoker, models ModelResolver, metrics Metrics, maxBodyBytes int64) *OpenAIHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &OpenAIHandler{
		client:       client,
		models:       models,
		metrics:      metrics,
		maxBodyBytes: maxBodyBytes,
		created:      time.Now().Unix(),
	}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *OpenAIHandler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	inbound, err := ReadBody(w, r, h.maxBodyBytes)
	if err != nil {
		h.metrics.InvalidRequest(RouteChatCompletions)
		SendProxyError(w, r, err)
		return
	}

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(inbound, &req); err != nil {
		h.metrics.InvalidRequest(RouteChatCompletions)
		SendProxyError(w, r, types.NewInvalidRequestError("invalid JSON: %v", err))
		return
	}

	upstream, err := transform.ChatRequestToUpstream(&req)
	if err != nil {
		h.metrics.InvalidRequest(RouteChatCompletions)
		logger(r).InfoContext(r.Context(), "rejected invalid chat request", "error", err)
		SendProxyError(w, r, err)
		return
	}

	modelID, mapped := h.models.Resolve(req.Model)
	if !mapped && req.Model != "" {
		logger(r).DebugContext(r.Context(), "unknown model, using fallback", "model", req.Model, "fallback", modelID)
	}
	logger(r).DebugContext(r.Context(), "converted chat request", "model", modelID, "payload", string(upstream))

	mode := types.ModeSync
	if req.Stream {
		mode = types.ModeStream
	}

	resp, ok := invokeUpstream(w, r, h.client, h.metrics, types.InferenceTarget{ModelID: modelID, Mode: mode}, upstream)
	if !ok {
		return
	}
	defer resp.Body.Close()

	if !relay.IsSuccess(resp.StatusCode) {
		if _, err := relay.Forward(w, resp); err != nil {
			logger(r).WarnContext(r.Context(), "failed to relay upstream error", "error", err)
		}
		return
	}

	responseModel := req.Model
	if responseModel == "" {
		responseModel = modelID
	}

	if req.Stream {
		h.stream(w, r, resp, responseModel)
		return
	}
	h.complete(w, r, resp, responseModel)
}

func (h *OpenAIHandler) complete(w http.ResponseWriter, r *http.Request, resp *http.Response, model string) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		SendProxyError(w, r, &types.ProxyError{Kind: types.KindUpstream, Message: "failed to read upstream response", Err: err})
		return
	}

	completion, err := transform.ChatCompletionFromUpstream(body, model)
	if err != nil {
		SendProxyError(w, r, err)
		return
	}
	SendJSON(w, http.StatusOK, completion)
}

func (h *OpenAIHandler) stream(w http.ResponseWriter, r *http.Request, resp *http.Response, model string) {
	sse, err := relay.NewSSEWriter(w)
	if err != nil {
		SendError(w, r, "STREAMING_NOT_SUPPORTED", "Streaming not supported by server", http.StatusInternalServerError)
		return
	}

	n, err := relay.StreamOpenAI(r.Context(), relay.NewEventStreamSource(resp.Body), sse, transform.NewChunkConverter(model), relay.Options{
		Logger:   logger(r),
		Recorder: h.metrics,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger(r).InfoContext(r.Context(), "chat stream ended with error", "error", err, "chunks", n)
		return
	}
	logger(r).DebugContext(r.Context(), "chat stream finished", "chunks", n)
}

// Models handles GET /v1/models. It lists the configured inference profile
// followed by every model alias.
func (h *OpenAIHandler) Models(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	list := types.ModelList{Object: types.ObjectList}
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		list.Data = append(list.Data, types.Model{
			ID:      id,
			Object:  types.ObjectModel,
			Created: h.created,
			OwnedBy: "anthropic",
		})
	}

	add(h.models.Fallback())
	for _, alias := range h.models.Aliases() {
		add(alias)
	}
	SendJSON(w, http.StatusOK, list)
}
