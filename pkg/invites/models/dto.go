package models

import "time"

// NewIDResponse is returned by the allocation endpoint.
type NewIDResponse struct {
	Id string `json:"id"`
}

// PublishResult is returned when a whole archive was relayed.
type PublishResult struct {
	Ok       bool     `json:"ok"`
	Id       string   `json:"id"`
	Uploaded []string `json:"uploaded"`
}

// MemberResult is returned when a single member was relayed.
type MemberResult struct {
	Ok       bool   `json:"ok"`
	Pathname string `json:"pathname"`
}

// GrantRequest asks for a direct-upload authorization for one key.
type GrantRequest struct {
	Pathname    string `json:"pathname" validate:"required"`
	ContentType string `json:"contentType,omitempty"`
}

// UploadGrant is a short-lived, key- and content-type-bound upload authorization.
type UploadGrant struct {
	Pathname    string            `json:"pathname"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	ContentType string            `json:"contentType"`
	ExpiresAt   time.Time         `json:"expiresAt"`
}

// StoredBlob is de database-representatie van een blob voor de SQL backend.
type StoredBlob struct {
	Pathname    string `gorm:"column:pathname;primaryKey"`
	ContentType string `gorm:"column:content_type"`
	Size        int64  `gorm:"column:size"`
	Data        []byte `gorm:"column:data"`
	UpdatedAt   time.Time
}

// IncompleteInvite describes an id prefix that lacks one or more slots.
type IncompleteInvite struct {
	Id      string   `json:"id"`
	Present []string `json:"present"`
	Missing []string `json:"missing"`
}
