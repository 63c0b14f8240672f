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

package llms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError is an error reply of the chat-completion endpoint.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       any    `json:"code"`
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "API request failed with status %d: %s", e.StatusCode, e.Message)
	if e.Type != "" {
		fmt.Fprintf(&b, " (type: %s)", e.Type)
	}
	if e.Code != nil {
		fmt.Fprintf(&b, " (code: %v)", e.Code)
	}
	return b.String()
}

// parseErrorResponse extracts the error object of a failed reply, falling
// back to the raw body or the status text.
func parseErrorResponse(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		envelope.Error.StatusCode = status
		return envelope.Error
	}

	message := strings.TrimSpace(string(body))
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: message}
}
