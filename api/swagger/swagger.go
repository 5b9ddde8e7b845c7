package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Cedar Terrace Parking Enforcement API",
        "description": "Parking violation lifecycle engine: observations, derived violations, notices, and timeline escalation.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Observations", "description": "Enforcement encounter records"},
        {"name": "Violations", "description": "Violation lifecycle and event log"},
        {"name": "Notices", "description": "Notice issuance and reprints"},
        {"name": "Positions", "description": "Parking position registry"},
        {"name": "Evidence", "description": "Evidence photo storage"},
        {"name": "Vehicles", "description": "Vehicle profiles"}
    ],
    "paths": {
        "/observations": {
            "post": {
                "tags": ["Observations"],
                "summary": "Submit an observation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitObservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Idempotent replay", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/observations/{id}": {
            "get": {
                "tags": ["Observations"],
                "summary": "Get an observation with its evidence",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/vehicles": {
            "get": {
                "tags": ["Vehicles"],
                "summary": "Look up a vehicle by plate and jurisdiction",
                "parameters": [
                    {"name": "plate", "in": "query", "required": true, "type": "string"},
                    {"name": "jurisdiction", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/vehicles/{id}": {
            "get": {
                "tags": ["Vehicles"],
                "summary": "Get a vehicle profile",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/violations": {
            "get": {
                "tags": ["Violations"],
                "summary": "List violations",
                "parameters": [
                    {"name": "vehicle_id", "in": "query", "type": "string"},
                    {"name": "position_id", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "open", "in": "query", "type": "boolean"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/violations/{id}": {
            "get": {
                "tags": ["Violations"],
                "summary": "Get a violation with its event log",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/violations/{id}/events": {
            "post": {
                "tags": ["Violations"],
                "summary": "Apply a lifecycle event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyEventRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or terminal state"}
                }
            }
        },
        "/violations/{id}/evaluate": {
            "post": {
                "tags": ["Violations"],
                "summary": "Run a timeline evaluation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notices": {
            "post": {
                "tags": ["Notices"],
                "summary": "Issue a notice",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IssueNoticeRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "200": {"description": "Idempotent replay", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Violation not notice eligible"}
                }
            }
        },
        "/notices/{id}": {
            "get": {
                "tags": ["Notices"],
                "summary": "Get a notice",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notices/{id}/document": {
            "get": {
                "tags": ["Notices"],
                "summary": "Download the printable notice document",
                "produces": ["application/pdf"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "PDF document"}
                }
            }
        },
        "/notices/qr/{token}": {
            "get": {
                "tags": ["Notices"],
                "summary": "Resolve a scanned QR token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/positions": {
            "get": {
                "tags": ["Positions"],
                "summary": "List parking positions",
                "parameters": [
                    {"name": "site", "in": "query", "type": "string"},
                    {"name": "type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Positions"],
                "summary": "Register a parking position",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreatePositionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/positions/locate": {
            "get": {
                "tags": ["Positions"],
                "summary": "Find the position containing a point",
                "parameters": [
                    {"name": "site", "in": "query", "required": true, "type": "string"},
                    {"name": "lat", "in": "query", "required": true, "type": "number"},
                    {"name": "lng", "in": "query", "required": true, "type": "number"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/positions/{id}": {
            "get": {
                "tags": ["Positions"],
                "summary": "Get a parking position",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Positions"],
                "summary": "Soft-delete a parking position",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"}
                }
            }
        },
        "/evidence/photos": {
            "post": {
                "tags": ["Evidence"],
                "summary": "Upload an evidence photo",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "photo", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/evidence/photos/{token}": {
            "get": {
                "tags": ["Evidence"],
                "summary": "Fetch an evidence photo via a signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Photo bytes"}
                }
            }
        }
    },
    "definitions": {
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"type": "object"},
                "meta": {"type": "object"}
            }
        },
        "SubmitObservationRequest": {
            "type": "object",
            "required": ["idempotencyKey", "site", "evidence"],
            "properties": {
                "idempotencyKey": {"type": "string"},
                "site": {"type": "string"},
                "observedAt": {"type": "string", "format": "date-time"},
                "plate": {"type": "string"},
                "jurisdiction": {"type": "string"},
                "parkingPositionId": {"type": "string"},
                "evidence": {"type": "array", "items": {"$ref": "#/definitions/EvidenceInput"}}
            }
        },
        "EvidenceInput": {
            "type": "object",
            "required": ["kind"],
            "properties": {
                "kind": {"type": "string", "enum": ["PHOTO", "NOTE"]},
                "storageKey": {"type": "string"},
                "intent": {"type": "string"},
                "text": {"type": "string"},
                "capturedAt": {"type": "string", "format": "date-time"}
            }
        },
        "ApplyEventRequest": {
            "type": "object",
            "required": ["eventType"],
            "properties": {
                "eventType": {"type": "string"},
                "notes": {"type": "string"},
                "observationId": {"type": "string"},
                "noticeId": {"type": "string"}
            }
        },
        "IssueNoticeRequest": {
            "type": "object",
            "required": ["violationId", "idempotencyKey"],
            "properties": {
                "violationId": {"type": "string"},
                "idempotencyKey": {"type": "string"}
            }
        },
        "CreatePositionRequest": {
            "type": "object",
            "required": ["site", "label", "type"],
            "properties": {
                "site": {"type": "string"},
                "label": {"type": "string"},
                "type": {"type": "string", "enum": ["OPEN", "PURCHASED", "RESERVED", "HANDICAPPED"]},
                "centerLat": {"type": "number"},
                "centerLng": {"type": "number"},
                "radiusMeters": {"type": "number"},
                "assignedVehicleId": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
