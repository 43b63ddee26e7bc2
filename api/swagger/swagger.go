package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Concept Paper Tracking API",
        "description": "Approval workflow tracking for concept papers",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "tags": [
        {"name": "Papers", "description": "Concept paper submission and lookup"},
        {"name": "Workflow", "description": "Stage transitions"},
        {"name": "Templates", "description": "Stage registry administration"},
        {"name": "Users", "description": "User deactivation and reassignment"},
        {"name": "Audit", "description": "Append-only workflow trail"},
        {"name": "Attachments", "description": "Paper attachments"}
    ],
    "paths": {
        "/papers": {
            "get": {
                "tags": ["Papers"],
                "summary": "List concept papers",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Papers"],
                "summary": "Submit a concept paper",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/papers/{id}": {
            "get": {
                "tags": ["Papers"],
                "summary": "Get a paper with its workflow stages",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/papers/{id}/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "List a paper's audit entries, oldest first",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/papers/{id}/attachments": {
            "get": {
                "tags": ["Attachments"],
                "summary": "List a paper's attachments",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "tags": ["Attachments"],
                "summary": "Attach a file to a concept paper",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/stages/{id}/advance": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Complete a stage and open the next one",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stages/{id}/return": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Send a stage back to its predecessor",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stages/{id}/reject": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Terminally reject the paper at this stage",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stages/{id}/reassign": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Reassign a stage to another user",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/workflow/overdue-scan": {
            "post": {
                "tags": ["Workflow"],
                "summary": "Run an overdue sweep immediately",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stage-templates": {
            "get": {
                "tags": ["Templates"],
                "summary": "List stage templates in workflow order",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/stage-templates/{id}": {
            "patch": {
                "tags": ["Templates"],
                "summary": "Change a template's time budget",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/users/{id}/affected-stages": {
            "get": {
                "tags": ["Users"],
                "summary": "Preview stages stranded by deactivating a user",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/users/{id}/deactivate": {
            "post": {
                "tags": ["Users"],
                "summary": "Deactivate a user, reassigning every stage they hold",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/attachments/{id}/download-link": {
            "post": {
                "tags": ["Attachments"],
                "summary": "Issue a signed download link",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/attachments/download": {
            "get": {
                "tags": ["Attachments"],
                "summary": "Stream an attachment via a signed token",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"type": "object"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
