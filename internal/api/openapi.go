package api

import (
	"net/http"
	"strings"

	"github.com/mattjoyce/hooky/internal/capture"
)

func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.config.BaseURL))
}

// route describes one documented operation.
type route struct {
	method    string
	path      string
	summary   string
	tag       string
	responses []string
	body      bool
}

var documentedRoutes = []route{
	{"any", "/capture/{token}", "Capture a request", "capture", []string{"200", "404", "413", "415"}, true},
	{"get", "/init", "Start an anonymous session with a webhook", "session", []string{"200", "201"}, false},
	{"post", "/api/auth/register", "Create an account", "auth", []string{"201", "400", "409"}, true},
	{"post", "/api/auth/login", "Log in", "auth", []string{"200", "400", "401"}, true},
	{"post", "/api/auth/logout", "Log out", "auth", []string{"200"}, false},
	{"get", "/api/auth/me", "Current user", "auth", []string{"200", "401"}, false},
	{"get", "/api/webhooks", "List webhooks", "webhooks", []string{"200", "401"}, false},
	{"post", "/api/webhooks", "Create a webhook", "webhooks", []string{"201", "400", "401", "409", "422"}, true},
	{"get", "/api/webhooks/unclaimed", "Unclaimed webhook of the anonymous session", "webhooks", []string{"200"}, false},
	{"post", "/api/webhooks/claim", "Claim the anonymous session's webhook", "webhooks", []string{"200", "400", "401", "404"}, false},
	{"get", "/api/webhooks/{id}", "Get a webhook", "webhooks", []string{"200", "404"}, false},
	{"patch", "/api/webhooks/{id}", "Update a webhook", "webhooks", []string{"200", "403", "409", "422"}, true},
	{"delete", "/api/webhooks/{id}", "Delete a webhook", "webhooks", []string{"204", "403"}, false},
	{"get", "/api/webhooks/{id}/response", "Get the capture reply", "responses", []string{"200", "403"}, false},
	{"put", "/api/webhooks/{id}/response", "Set the capture reply", "responses", []string{"200", "403", "422"}, true},
	{"delete", "/api/webhooks/{id}/response", "Reset the capture reply", "responses", []string{"204", "403"}, false},
	{"get", "/api/webhooks/{id}/requests", "List captured requests", "requests", []string{"200", "404"}, false},
	{"delete", "/api/webhooks/{id}/requests", "Clear captured requests", "requests", []string{"200", "403"}, false},
	{"get", "/api/webhooks/{id}/requests/{requestID}", "Get a captured request", "requests", []string{"200", "404"}, false},
	{"get", "/api/webhooks/{id}/events", "Stream captures as server-sent events", "realtime", []string{"200", "404"}, false},
	{"get", "/api/ws", "Stream captures over a websocket", "realtime", []string{"101"}, false},
	{"get", "/healthz", "Health check", "ops", []string{"200", "503"}, false},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the HTTP surface.
func buildOpenAPIDoc(baseURL string) map[string]any {
	paths := map[string]any{}
	for _, rt := range documentedRoutes {
		item, ok := paths[rt.path].(map[string]any)
		if !ok {
			item = map[string]any{}
			paths[rt.path] = item
		}

		responses := map[string]any{}
		for _, code := range rt.responses {
			responses[code] = map[string]any{"description": statusDescription(code)}
		}
		op := map[string]any{
			"summary":   rt.summary,
			"tags":      []string{rt.tag},
			"responses": responses,
		}
		if rt.body {
			op["requestBody"] = map[string]any{
				"required": false,
				"content":  map[string]any{"application/json": map[string]any{}},
			}
		}
		if rt.method == "any" {
			for _, m := range capture.Methods {
				item[strings.ToLower(m)] = op
			}
			continue
		}
		item[rt.method] = op
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "Hooky",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
	}
	if baseURL != "" {
		doc["servers"] = []any{map[string]any{"url": baseURL}}
	}
	return doc
}

func statusDescription(code string) string {
	switch code {
	case "101":
		return "Switching Protocols"
	case "200":
		return "OK"
	case "201":
		return "Created"
	case "204":
		return "No Content"
	case "400":
		return "Bad request"
	case "401":
		return "Not logged in"
	case "403":
		return "Not the owner"
	case "404":
		return "Not found"
	case "409":
		return "Token already in use"
	case "413":
		return "Payload too large"
	case "415":
		return "Binary content type"
	case "422":
		return "Validation failed"
	case "503":
		return "Database unavailable"
	}
	return ""
}
