package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskhub/backend/pkg/logger"
)

const maxAuditBody = 2000

var sensitiveKeys = []string{"password", "password_confirmation", "secret", "token"}

// AuditLog writes one structured log line for every write request
// (POST/PUT/PATCH/DELETE) after the handler has run.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if !isWrite(method) {
			c.Next()
			return
		}

		var body string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			body = maskSensitiveFields(string(bodyBytes))
			if len(body) > maxAuditBody {
				body = body[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		status := c.Writer.Status()
		resource, action := parseRouteInfo(c.FullPath(), method)

		event := logger.Info()
		if status >= http.StatusBadRequest {
			event = logger.Warn()
		}
		event.
			Bool("audit", true).
			Str("request_id", logger.RequestID(c)).
			Uint("user_id", GetUserID(c)).
			Str("resource", resource).
			Str("action", action).
			Str("method", method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Str("ip", c.ClientIP()).
			Str("body", body).
			Msg("audit")
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// parseRouteInfo extracts resource and action from a Gin route pattern.
// e.g. "/api/project/:id/members/:user_id" + "DELETE" -> "project", "delete"
func parseRouteInfo(fullPath, method string) (resource, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")

	parts := strings.SplitN(path, "/", 2)
	resource = parts[0]
	if resource == "" {
		resource = "unknown"
	}

	switch method {
	case http.MethodPost:
		action = "create"
	case http.MethodPut, http.MethodPatch:
		action = "update"
	case http.MethodDelete:
		action = "delete"
	default:
		action = strings.ToLower(method)
	}
	return resource, action
}

// maskSensitiveFields replaces the values of sensitive JSON keys with ***.
func maskSensitiveFields(body string) string {
	for _, key := range sensitiveKeys {
		body = maskJSONValue(body, key)
	}
	return body
}

// maskJSONValue masks every quoted string value that follows "key":
func maskJSONValue(body, key string) string {
	needle := "\"" + key + "\""
	from := 0
	for {
		idx := strings.Index(body[from:], needle)
		if idx == -1 {
			return body
		}
		idx += from + len(needle)

		i := idx
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != ':' {
			from = idx
			continue
		}
		i++
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != '"' {
			from = i
			continue
		}

		end := strings.Index(body[i+1:], "\"")
		if end == -1 {
			return body
		}
		body = body[:i+1] + "***" + body[i+1+end:]
		from = i + 5
	}
}
