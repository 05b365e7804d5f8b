package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Merit API",
        "description": "Merit point ledger, quests, appeals and leaderboards",
        "version": "1.0.0"
    },
    "basePath": "/",
    "schemes": ["http"],
    "securityDefinitions": {"BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}},
    "tags": [
        {"name": "Ledger", "description": "Append-only merit point ledger"},
        {"name": "Merit", "description": "Summaries, leaderboards and exports"},
        {"name": "Quests", "description": "Quest catalog and participant lifecycle"},
        {"name": "Appeals", "description": "Disputes against ledger entries"},
        {"name": "TeacherReports", "description": "Teacher observations"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/health": {
            "get": {
                "tags": ["Observability"],
                "summary": "Liveness check",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/ready": {
            "get": {
                "tags": ["Observability"],
                "summary": "Readiness check probing Postgres and Redis",
                "responses": {"200": {"description": "Ready"}, "503": {"description": "Degraded"}}
            }
        },
        "/metrics": {
            "get": {
                "tags": ["Observability"],
                "summary": "Prometheus metrics",
                "produces": ["text/plain"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Process metrics snapshot",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/SystemMetrics"}}
                }
            }
        },
        "/api/v1/ledger": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Append a ledger entry",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/AppendRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Ledger"],
                "summary": "List ledger entries",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/ledger/{id}": {
            "get": {
                "tags": ["Ledger"],
                "summary": "Get a ledger entry",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Ledger"],
                "summary": "Hard delete a ledger entry",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/v1/classes/{classId}/bulk-actions": {
            "post": {
                "tags": ["Ledger"],
                "summary": "Apply a ledger action to every active student of a class",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "classId", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/BulkAction"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/presets": {
            "get": {
                "tags": ["Ledger"],
                "summary": "List behavior presets",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/students/{id}/summary": {
            "get": {
                "tags": ["Merit"],
                "summary": "Student merit summary",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/students/{id}/summary.pdf": {
            "get": {
                "tags": ["Merit"],
                "summary": "Download a student summary as PDF",
                "produces": ["application/pdf"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "PDF document"}}
            }
        },
        "/api/v1/students/{id}/quests": {
            "get": {
                "tags": ["Quests"],
                "summary": "List a student's quests",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/leaderboard": {
            "get": {
                "tags": ["Merit"],
                "summary": "School leaderboard",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/leaderboard.csv": {
            "get": {
                "tags": ["Merit"],
                "summary": "Download the leaderboard as CSV",
                "produces": ["text/csv"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "classId", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "CSV document"}}
            }
        },
        "/api/v1/leaderboard/class": {
            "get": {
                "tags": ["Merit"],
                "summary": "Class leaderboard including the requester's standing",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "classId", "in": "query", "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/dashboard": {
            "get": {
                "tags": ["Merit"],
                "summary": "School-wide merit dashboard",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "academicYear", "in": "query", "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quests": {
            "post": {
                "tags": ["Quests"],
                "summary": "Create quest",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/QuestRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Quests"],
                "summary": "List quests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "supervisorId", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quests/{id}": {
            "get": {
                "tags": ["Quests"],
                "summary": "Get quest",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Quests"],
                "summary": "Update quest",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/QuestRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Quests"],
                "summary": "Delete quest",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/api/v1/quests/{id}/join": {
            "post": {
                "tags": ["Quests"],
                "summary": "Join a quest",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {"$ref": "#/definitions/ParticipationRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quests/{id}/submit": {
            "post": {
                "tags": ["Quests"],
                "summary": "Submit quest work for review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": false,
                        "schema": {"$ref": "#/definitions/ParticipationRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quests/{id}/participants": {
            "get": {
                "tags": ["Quests"],
                "summary": "List quest participants",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/quests/{id}/participants/{studentId}/review": {
            "post": {
                "tags": ["Quests"],
                "summary": "Approve or reject a submission",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ReviewRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/appeals": {
            "post": {
                "tags": ["Appeals"],
                "summary": "File an appeal against a ledger entry",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreateAppealRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Appeals"],
                "summary": "List appeals",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "academicYear", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/appeals/{id}": {
            "get": {
                "tags": ["Appeals"],
                "summary": "Get appeal",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Appeals"],
                "summary": "Review an appeal",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/UpdateAppealRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/teacher-reports": {
            "post": {
                "tags": ["TeacherReports"],
                "summary": "File a teacher report",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/CreateTeacherReportRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["TeacherReports"],
                "summary": "List teacher reports",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "teacherId", "in": "query", "type": "string"},
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/api/v1/teacher-reports/{id}": {
            "get": {
                "tags": ["TeacherReports"],
                "summary": "Get teacher report",
                "security": [{"BearerAuth": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["TeacherReports"],
                "summary": "Advance a teacher report status",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {
                        "name": "payload",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ReportStatusRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AppendRequest": {
            "type": "object",
            "required": ["student_id", "points", "kind", "category"],
            "properties": {
                "student_id": {"type": "string"},
                "points": {"type": "integer"},
                "kind": {"type": "string", "enum": ["REWARD", "VIOLATION", "QUEST", "OVERRIDE", "APPEAL_REVERSAL"]},
                "category": {"type": "string"},
                "description": {"type": "string"},
                "badge": {
                    "type": "object",
                    "required": ["tier"],
                    "properties": {
                        "tier": {"type": "string", "enum": ["bronze", "silver", "gold"]},
                        "title": {"type": "string"}
                    }
                },
                "academic_year": {"type": "string"}
            }
        },
        "BulkAction": {
            "type": "object",
            "properties": {
                "points": {"type": "integer"},
                "category": {"type": "string"},
                "description": {"type": "string"},
                "preset_id": {"type": "string"},
                "academic_year": {"type": "string"}
            }
        },
        "QuestRequest": {
            "type": "object",
            "required": ["title"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "points": {"type": "integer"},
                "required_points": {"type": "integer"},
                "badge_tier": {"type": "string", "enum": ["bronze", "silver", "gold"]},
                "slots_available": {"type": "integer"},
                "expires_at": {"type": "string", "format": "date-time"},
                "academic_year": {"type": "string"},
                "is_active": {"type": "boolean"},
                "supervisor_id": {"type": "string"}
            }
        },
        "ParticipationRequest": {"type": "object", "properties": {"student_id": {"type": "string"}}},
        "ReviewRequest": {
            "type": "object",
            "required": ["approve"],
            "properties": {"approve": {"type": "boolean"}, "notes": {"type": "string"}}
        },
        "CreateAppealRequest": {
            "type": "object",
            "required": ["point_log_id", "reason"],
            "properties": {
                "point_log_id": {"type": "string"},
                "student_id": {"type": "string"},
                "reason": {"type": "string"},
                "academic_year": {"type": "string"}
            }
        },
        "UpdateAppealRequest": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["PENDING", "APPROVED", "REJECTED"]},
                "review_notes": {"type": "string"}
            }
        },
        "CreateTeacherReportRequest": {
            "type": "object",
            "required": ["student_id", "category", "title", "body"],
            "properties": {
                "student_id": {"type": "string"},
                "class_id": {"type": "string"},
                "category": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"}
            }
        },
        "ReportStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["OPEN", "ACKNOWLEDGED", "RESOLVED"]}
            }
        },
        "SystemMetrics": {
            "type": "object",
            "properties": {
                "cache_hit_ratio": {"type": "number"},
                "cache_hits": {"type": "integer"},
                "cache_misses": {"type": "integer"},
                "requests_total": {"type": "integer"},
                "average_request_duration_ms": {"type": "number"},
                "ledger_entries_by_kind": {"type": "object", "additionalProperties": {"type": "integer"}},
                "goroutines": {"type": "integer"},
                "generated_at": {"type": "string", "format": "date-time"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}, "status": {"type": "integer"}}
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
