package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// BasePath is the prefix of every authentication route.
const BasePath = "/api/v1/auth"

// GenerateAuthSpec generates the OpenAPI 3.1 document for the API key
// authentication endpoints.
func GenerateAuthSpec(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Apiodactyl API",
			Description: "API key authentication and key administration.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "API key",
			Description:  "An API key of the form ak_<32 hex chars>.",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"bearerAuth": {}},
	}

	addSchemas(doc.Components.Schemas)

	doc.Paths = openapi3.NewPaths()
	addIdentityPaths(doc)
	addAdminPaths(doc)
	addProbePaths(doc)

	return doc
}

func addSchemas(schemas openapi3.Schemas) {
	schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	schemas["APIKey"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:        &openapi3.Types{"object"},
			Description: "Stored API key metadata. The key itself and its hash are never returned.",
			Required:    []string{"id", "is_admin", "created_at", "last_used_at"},
			Properties: openapi3.Schemas{
				"id":         &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"is_admin":   &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"created_at": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}},
				"last_used_at": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"string", "null"},
					Format:      "date-time",
					Description: "Best-effort timestamp of the last successful authentication.",
				}},
			},
		},
	}

	schemas["CreateKeyRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"is_admin": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"boolean"},
					Description: "Grant admin rights to the new key. Defaults to false.",
				}},
			},
		},
	}

	schemas["CreateKeyResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"api_key": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:        &openapi3.Types{"string"},
					Description: "The generated key. It is shown only once.",
				}},
				"details": openapi3.NewSchemaRef("#/components/schemas/APIKey", nil),
			},
		},
	}

	schemas["RevokeKeyRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"api_key"},
			Properties: openapi3.Schemas{
				"api_key": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	schemas["MessageResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}
}

func addIdentityPaths(doc *openapi3.T) {
	doc.Paths.Set(BasePath+"/profile", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"identity"},
			Summary:     "Describe the calling key",
			OperationID: "get_profile",
			Responses:   newResponses("200", "Key metadata", openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)),
		},
	})

	doc.Paths.Set(BasePath+"/is-admin", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"identity"},
			Summary:     "Report whether the calling key is an admin",
			OperationID: "is_admin",
			Responses: newResponses("200", "Admin flag", &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}},
			}),
		},
	})
}

func addAdminPaths(doc *openapi3.T) {
	messageRef := openapi3.NewSchemaRef("#/components/schemas/MessageResponse", nil)

	doc.Paths.Set(BasePath+"/create-key", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Generate a new API key",
			Description: "Generates a key, stores only its hash and returns the key once.",
			OperationID: "create_key",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Content: openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/CreateKeyRequest", nil)),
				},
			},
			Responses: adminResponses("201", "Key created", openapi3.NewSchemaRef("#/components/schemas/CreateKeyResponse", nil)),
		},
	})

	doc.Paths.Set(BasePath+"/revoke-key", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Revoke an API key by value",
			Description: "Deletes the key and evicts it from the cache so it is rejected immediately.",
			OperationID: "revoke_key",
			RequestBody: &openapi3.RequestBodyRef{
				Value: &openapi3.RequestBody{
					Required: true,
					Content:  openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/RevokeKeyRequest", nil)),
				},
			},
			Responses: adminResponses("200", "Key revoked", messageRef),
		},
	})

	keyIDParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("keyId").
			WithDescription("Numeric key ID.").
			WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
	}

	doc.Paths.Set(BasePath+"/keys/{keyId}", &openapi3.PathItem{
		Delete: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Revoke an API key by ID",
			OperationID: "revoke_key_by_id",
			Parameters:  openapi3.Parameters{keyIDParam},
			Responses:   adminResponses("200", "Key revoked", messageRef),
		},
	})

	doc.Paths.Set(BasePath+"/keys/{keyId}/promote", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Grant admin rights to a key",
			OperationID: "promote_key",
			Parameters:  openapi3.Parameters{keyIDParam},
			Responses:   adminResponses("200", "Key promoted", openapi3.NewSchemaRef("#/components/schemas/APIKey", nil)),
		},
	})

	doc.Paths.Set(BasePath+"/list-keys", &openapi3.PathItem{
		Get: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "List all API keys",
			OperationID: "list_keys",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: func() *openapi3.Parameter {
						p := openapi3.NewQueryParameter("admin")
						p.Description = "Only return admin keys (\"true\" to enable)."
						p.Schema = &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}
						return p
					}(),
				},
			},
			Responses: adminResponses("200", "All keys", &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					Type: &openapi3.Types{"object"},
					Properties: openapi3.Schemas{
						"resource": &openapi3.SchemaRef{
							Value: &openapi3.Schema{
								Type:  &openapi3.Types{"array"},
								Items: openapi3.NewSchemaRef("#/components/schemas/APIKey", nil),
							},
						},
						"meta": metaSchema(),
					},
				},
			}),
		},
	})

	doc.Paths.Set(BasePath+"/cleanup-cache", &openapi3.PathItem{
		Post: &openapi3.Operation{
			Tags:        []string{"admin"},
			Summary:     "Evict expired cache entries",
			OperationID: "cleanup_cache",
			Responses:   adminResponses("200", "Cleanup completed", messageRef),
		},
	})
}

func addProbePaths(doc *openapi3.T) {
	noAuth := &openapi3.SecurityRequirements{}
	status := &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"status": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	for path, summary := range map[string]string{
		"/healthz": "Liveness probe",
		"/readyz":  "Readiness probe (key store reachable)",
	} {
		desc := "Probe result"
		responses := openapi3.NewResponses()
		responses.Set("200", &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(status),
			},
		})
		doc.Paths.Set(path, &openapi3.PathItem{
			Get: &openapi3.Operation{
				Tags:      []string{"system"},
				Summary:   summary,
				Security:  noAuth,
				Responses: responses,
			},
		})
	}
}

// ─── Response Helpers ───────────────────────────────────────────────────────

// newResponses builds a Responses map with a success response and the error
// responses every authenticated route can return.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	setErrorResponse(responses, "401", "Missing, malformed or unknown API key")
	setErrorResponse(responses, "500", "Internal server error")
	return responses
}

// adminResponses extends newResponses with the errors specific to admin
// routes.
func adminResponses(statusCode, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := newResponses(statusCode, description, schema)
	setErrorResponse(responses, "400", "Bad request")
	setErrorResponse(responses, "403", "Admin access required")
	setErrorResponse(responses, "404", "Key not found")
	setErrorResponse(responses, "409", "Key already exists")
	return responses
}

func setErrorResponse(responses *openapi3.Responses, code, description string) {
	desc := description
	responses.Set(code, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/ErrorResponse", nil)),
		},
	})
}

// metaSchema returns the schema for the "meta" field in list responses.
func metaSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type:        &openapi3.Types{"integer"},
						Format:      "int64",
						Description: "Number of keys returned.",
					},
				},
			},
		},
	}
}
