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

package httpclient

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ParseRetryAfter reads the standard Retry-After header, in seconds or as an HTTP date.
func ParseRetryAfter(headers http.Header) RateLimitInfo {
	info := RateLimitInfo{}
	v := strings.TrimSpace(headers.Get("Retry-After"))
	if v == "" {
		return info
	}
	if seconds, err := strconv.Atoi(v); err == nil {
		info.RetryAfter = time.Duration(seconds) * time.Second
		return info
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			info.RetryAfter = d
		}
	}
	return info
}

// ParseOpenAIHeaders extracts rate limit info from OpenAI-compatible API headers.
func ParseOpenAIHeaders(headers http.Header) RateLimitInfo {
	info := ParseRetryAfter(headers)

	// x-ratelimit-reset-* carry durations such as "6m0s" or "1.5s".
	if info.RetryAfter == 0 {
		for _, header := range []string{"x-ratelimit-reset-requests", "x-ratelimit-reset-tokens"} {
			if v := headers.Get(header); v != "" {
				if d, err := time.ParseDuration(v); err == nil && d > 0 {
					info.RetryAfter = d
					break
				}
			}
		}
	}

	if v := headers.Get("x-ratelimit-remaining-requests"); v != "" {
		info.RequestsRemaining, _ = strconv.Atoi(v)
	}
	if v := headers.Get("x-ratelimit-remaining-tokens"); v != "" {
		info.TokensRemaining, _ = strconv.Atoi(v)
	}
	return info
}
