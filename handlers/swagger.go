package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger serves the OpenAPI description of the local surface.
// - GET /swagger/index.html  -> swagger-ui page loading doc.json
// - GET /swagger/doc.json    -> OpenAPI JSON
func RegisterSwagger(rg gin.IRouter) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>meowchat-webclient API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "meowchat-webclient", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "post": {
        "summary": "Log in against the chat backend",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"}}}}}},
        "responses": { "200": { "description": "session established" }, "400": { "description": "missing fields" }, "401": { "description": "invalid credentials" }, "409": { "description": "superseded by a newer operation" } }
      }
    },
    "/auth/register": {
      "post": {
        "summary": "Create an account (does not log in)",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["username","password"],"properties":{"username":{"type":"string"},"password":{"type":"string"},"first_name":{"type":"string"},"last_name":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "rejected by the backend" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "End the session locally and notify the backend", "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/verify": {
      "post": { "summary": "Re-check the session with the backend", "responses": { "200": { "description": "current session" } } }
    },
    "/auth/session": {
      "get": { "summary": "Current session belief", "responses": { "200": { "description": "current session" } } }
    },
    "/servers/{serverId}": {
      "get": {
        "summary": "Member-only server page",
        "parameters": [{ "name": "serverId", "in": "path", "required": true, "schema": {"type":"integer"} }],
        "responses": { "200": { "description": "member" }, "202": { "description": "session loading" }, "302": { "description": "login required" }, "403": { "description": "not a member" } }
      }
    },
    "/servers/{serverId}/join": {
      "post": { "summary": "Join a server", "parameters": [{ "name": "serverId", "in": "path", "required": true, "schema": {"type":"integer"} }], "responses": { "200": { "description": "joined" }, "502": { "description": "backend failure" } } }
    },
    "/servers/{serverId}/membership": {
      "delete": { "summary": "Leave a server", "parameters": [{ "name": "serverId", "in": "path", "required": true, "schema": {"type":"integer"} }], "responses": { "200": { "description": "left" }, "403": { "description": "owner or permission conflict" }, "404": { "description": "not a member" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
