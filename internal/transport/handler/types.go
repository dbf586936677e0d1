package handler

import "github.com/trunov/freshconnect-images/internal/entities"

type PreviewParams struct {
	OwnerContext string `validate:"omitempty,max=128"` // e.g. "listing:new", "menu:42"
}

type CleanRequest struct {
	Raw string `json:"raw" validate:"max=20971520"`
}

type ExpiredParams struct {
	Handle string `validate:"required,max=2048"`
}

type RepresentationResponse struct {
	Kind           string `json:"kind"`
	Representation string `json:"representation"`
	MediaType      string `json:"mediaType,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type UploadResponse struct {
	RepresentationResponse
	IsDegraded bool   `json:"isDegraded"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Error      string `json:"error,omitempty"`
}

type ReviveResponse struct {
	Expired []string `json:"expired"`
}

type ExpiredResponse struct {
	Handle  string `json:"handle"`
	Expired bool   `json:"expired"`
}

func toRepresentationResponse(rep entities.Representation) RepresentationResponse {
	return RepresentationResponse{
		Kind:           rep.Kind.String(),
		Representation: rep.String(),
		MediaType:      rep.MediaType,
		Reason:         string(rep.Reason),
	}
}
