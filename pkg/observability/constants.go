// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

// Span names.
const (
	SpanSession       = "esagent.session"
	SpanLLMRequest    = "esagent.llm_request"
	SpanToolExecution = "esagent.tool_execution"
	SpanSearch        = "esagent.search"
	SpanBulk          = "esagent.bulk"
	SpanBackend       = "esagent.backend_request"
	SpanHTTPRequest   = "http.request"
)

// Span and metric attribute keys.
const (
	AttrSessionID   = "esagent.session_id"
	AttrToolName    = "esagent.tool.name"
	AttrToolCallID  = "esagent.tool.call_id"
	AttrIndex       = "esagent.index"
	AttrLLMModel    = "gen_ai.request.model"
	AttrInputTokens = "gen_ai.usage.input_tokens"
	AttrOutTokens   = "gen_ai.usage.output_tokens"
	AttrTurns       = "esagent.turns"
	AttrStatus      = "esagent.status"
	AttrRetries     = "esagent.search.retries"
	AttrSize        = "esagent.search.size"
	AttrBatch       = "esagent.bulk.batch"

	AttrHTTPMethod     = "http.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.status_code"
)

// Tracer names per component.
const (
	TracerAgent   = "esagent.agent"
	TracerTool    = "esagent.tool"
	TracerLLM     = "esagent.llm"
	TracerElastic = "esagent.elastic"
	TracerHTTP    = "esagent.http"
)
