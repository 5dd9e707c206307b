// Package docs registers the swagger document served by /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "Service is healthy"},
                    "503": {"description": "Service is unhealthy"}
                }
            }
        },
        "/live": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "Service is alive"}}
            }
        },
        "/ready": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Service is ready"},
                    "503": {"description": "Service is not ready"}
                }
            }
        },
        "/api/v1/ports": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ports"],
                "summary": "List ports",
                "responses": {
                    "200": {"description": "Available ports"},
                    "400": {"description": "Listing not supported by the transport"}
                }
            }
        },
        "/api/v1/port": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Ports"],
                "summary": "Port status",
                "responses": {"200": {"description": "Port status"}}
            }
        },
        "/api/v1/port/open": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Ports"],
                "summary": "Open port",
                "responses": {
                    "200": {"description": "Port opened"},
                    "400": {"description": "Invalid port configuration"}
                }
            }
        },
        "/api/v1/port/close": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Ports"],
                "summary": "Close port",
                "responses": {
                    "200": {"description": "Port closed"},
                    "504": {"description": "Close did not complete"}
                }
            }
        },
        "/api/v1/acquisition": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Acquisition"],
                "summary": "Acquisition status",
                "responses": {"200": {"description": "Acquisition status"}}
            }
        },
        "/api/v1/acquisition/start": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Acquisition"],
                "summary": "Start acquisition",
                "responses": {
                    "201": {"description": "Acquisition started"},
                    "409": {"description": "Acquisition already running"}
                }
            }
        },
        "/api/v1/acquisition/stop": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Acquisition"],
                "summary": "Stop acquisition",
                "responses": {
                    "200": {"description": "Acquisition stopped"},
                    "409": {"description": "Acquisition not running"}
                }
            }
        },
        "/api/v1/telegrams": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Telegrams"],
                "summary": "List telegrams",
                "parameters": [
                    {"type": "string", "name": "session_id", "in": "query"},
                    {"type": "string", "name": "since", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"},
                    {"type": "integer", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "Telegrams"},
                    "400": {"description": "Invalid filter"},
                    "503": {"description": "Recording disabled"}
                }
            }
        },
        "/api/v1/sessions": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Telegrams"],
                "summary": "List sessions",
                "responses": {"200": {"description": "Sessions"}}
            }
        },
        "/api/v1/sessions/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Telegrams"],
                "summary": "Get session",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "Session"},
                    "404": {"description": "Session not found"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8085",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "DataExplorer Comm API",
	Description:      "Device port diagnostics and telegram acquisition",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
