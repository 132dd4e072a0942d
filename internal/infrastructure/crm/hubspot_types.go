package crm

import (
	"encoding/json"
	"fmt"
)

// hubSpotObject is a CRM v3 object response
type hubSpotObject struct {
	ID         string             `json:"id"`
	Properties map[string]*string `json:"properties"`
	CreatedAt  string             `json:"createdAt,omitempty"`
	UpdatedAt  string             `json:"updatedAt,omitempty"`
	Archived   bool               `json:"archived,omitempty"`
}

// hubSpotObjectInput is the body of a create or update call
type hubSpotObjectInput struct {
	Properties map[string]string `json:"properties"`
}

// hubSpotAssociationResults is a CRM v4 association listing
type hubSpotAssociationResults struct {
	Results []struct {
		ToObjectID json.Number `json:"toObjectId"`
	} `json:"results"`
}

// hubSpotSearchRequest is the body of a CRM search call
type hubSpotSearchRequest struct {
	FilterGroups []hubSpotFilterGroup `json:"filterGroups"`
	Sorts        []hubSpotSort        `json:"sorts,omitempty"`
	Properties   []string             `json:"properties,omitempty"`
	Limit        int                  `json:"limit,omitempty"`
}

type hubSpotFilterGroup struct {
	Filters []hubSpotFilter `json:"filters"`
}

type hubSpotFilter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value"`
}

type hubSpotSort struct {
	PropertyName string `json:"propertyName"`
	Direction    string `json:"direction"`
}

// hubSpotSearchResponse is a CRM search result page
type hubSpotSearchResponse struct {
	Total   int             `json:"total"`
	Results []hubSpotObject `json:"results"`
}

// hubSpotErrorResponse is the error body HubSpot returns on 4xx/5xx
type hubSpotErrorResponse struct {
	Status        string `json:"status"`
	Message       string `json:"message"`
	Category      string `json:"category"`
	CorrelationID string `json:"correlationId"`
}

// HubSpot error categories used for classification
const (
	hubSpotCategoryNotFound   = "OBJECT_NOT_FOUND"
	hubSpotCategoryConflict   = "CONFLICT"
	hubSpotCategoryValidation = "VALIDATION_ERROR"
	hubSpotCategoryRateLimit  = "RATE_LIMITS"
)

// hubSpotTokenResponse is the OAuth token endpoint response
type hubSpotTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// hubSpotTokenError is the OAuth token endpoint error body
type hubSpotTokenError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// flattenProperties turns nullable property values into plain strings
func flattenProperties(props map[string]*string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func (e hubSpotErrorResponse) String() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Category)
	}
	return e.Message
}
