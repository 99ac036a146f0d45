package secrets

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// MaxBodySize is the truncation threshold for logged/persisted
// request and response bodies (§7).
const MaxBodySize = 1024

var (
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key[s]?["']?\s*[:=]\s*["']?)([a-zA-Z0-9_-]{20,})`)
	tokenPattern  = regexp.MustCompile(`(?i)(token|secret|password|bot_token)(["']?\s*[:=]\s*["']?)([a-zA-Z0-9_:-]{8,})`)
	bearerPattern = regexp.MustCompile(`(?i)(Bearer\s+)([a-zA-Z0-9_.-]+)`)
	urlSecretQS   = regexp.MustCompile(`(?i)(\?|&)(token|api_key|secret)=([^&]+)`)
)

var sensitiveHeaders = map[string]struct{}{
	"authorization":    {},
	"x-api-key":        {},
	"x-webhook-token":  {},
	"x-secret":         {},
	"api-key":          {},
	"token":            {},
}

// RedactSecrets masks API keys, tokens/secrets/passwords, and Bearer
// credentials in a free-text string. Wallet addresses are never
// touched — they carry no matching pattern above.
func RedactSecrets(value string) string {
	result := apiKeyPattern.ReplaceAllString(value, "${1}***")
	result = tokenPattern.ReplaceAllStringFunc(result, func(m string) string {
		groups := tokenPattern.FindStringSubmatch(m)
		return groups[1] + groups[2] + firstChars(groups[3], 4) + "..."
	})
	result = bearerPattern.ReplaceAllStringFunc(result, func(m string) string {
		groups := bearerPattern.FindStringSubmatch(m)
		return groups[1] + firstChars(groups[2], 4) + "..."
	})
	return result
}

// RedactHeaders masks sensitive HTTP header values, leaving
// non-sensitive headers untouched.
func RedactHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if _, sensitive := sensitiveHeaders[strings.ToLower(k)]; sensitive {
			if len(v) > 4 {
				out[k] = v[:4] + "..."
			} else {
				out[k] = "***"
			}
			continue
		}
		out[k] = v
	}
	return out
}

// TruncateBody truncates a body (already stringified) to MaxBodySize,
// appending a marker noting how many bytes were dropped.
func TruncateBody(body string) string {
	if len(body) <= MaxBodySize {
		return body
	}
	dropped := len(body) - MaxBodySize
	return body[:MaxBodySize] + sprintfTruncated(dropped)
}

// TruncateJSONBody marshals v to JSON, then truncates.
func TruncateJSONBody(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return TruncateBody(string(b))
}

// SanitizeURL redacts secret-suffixed query parameters (token,
// api_key, secret) from a URL string.
func SanitizeURL(url string) string {
	return urlSecretQS.ReplaceAllString(url, "${1}${2}=***")
}

func firstChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sprintfTruncated(n int) string {
	return "... [TRUNCATED " + strconv.Itoa(n) + " bytes]"
}
