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

package elastic

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const maxReasonLength = 512

// APIError is a non-2xx reply from the cluster.
type APIError struct {
	Status int
	Type   string
	Reason string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("elastic: %d %s: %s", e.Status, e.Type, e.Reason)
	}
	return fmt.Sprintf("elastic: %d: %s", e.Status, e.Reason)
}

// IsNotFound reports whether err is a 404 reply from the cluster.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// parseAPIError reads the error envelope, which is either
// {"error":{"type":..,"reason":..},"status":N} or {"error":"text"}.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var detail struct {
			Type      string `json:"type"`
			Reason    string `json:"reason"`
			RootCause []struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"root_cause"`
		}
		if err := json.Unmarshal(envelope.Error, &detail); err == nil {
			apiErr.Type, apiErr.Reason = detail.Type, detail.Reason
			if apiErr.Reason == "" && len(detail.RootCause) > 0 {
				apiErr.Type, apiErr.Reason = detail.RootCause[0].Type, detail.RootCause[0].Reason
			}
		} else {
			var text string
			if json.Unmarshal(envelope.Error, &text) == nil {
				apiErr.Reason = text
			}
		}
	}

	if apiErr.Reason == "" {
		apiErr.Reason = strings.TrimSpace(string(body))
	}
	if apiErr.Reason == "" {
		apiErr.Reason = http.StatusText(status)
	}
	if r := []rune(apiErr.Reason); len(r) > maxReasonLength {
		apiErr.Reason = string(r[:maxReasonLength]) + "..."
	}
	return apiErr
}
