package domain

import "time"

type RecordType string

const (
	RecordTypeURI  RecordType = "uri"
	RecordTypeNote RecordType = "note"
)

// PasswordPlaceholder stands in for an existing password hash in the bulk
// format. It is never accepted as a new password.
const PasswordPlaceholder = "********"

type Record struct {
	Type         RecordType `json:"type"`
	Content      string     `json:"content"`
	PasswordHash string     `json:"password_hash,omitempty"`
	CreatedAt    time.Time  `json:"created_at,omitzero"`
	UpdatedAt    time.Time  `json:"updated_at,omitzero"`
}

func (r *Record) IsProtected() bool {
	return r != nil && r.PasswordHash != ""
}

// ParsedEntry is one entry read from a bulk document. RawPassword is set only
// when the author typed a new password; KeepPassword is set when the entry
// carried the placeholder.
type ParsedEntry struct {
	Key          string
	Record       Record
	RawPassword  string
	KeepPassword bool
	Line         int
}

type SaveRecordRequest struct {
	Type           RecordType `json:"type" validate:"required,oneof=uri note"`
	Content        string     `json:"content" validate:"required"`
	Password       string     `json:"password,omitempty" validate:"omitempty,max=256"`
	RemovePassword bool       `json:"remove_password,omitempty"`
}

type RecordResponse struct {
	Key         string     `json:"key"`
	Type        RecordType `json:"type"`
	Content     string     `json:"content"`
	HasPassword bool       `json:"has_password"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

func NewRecordResponse(key string, r *Record) *RecordResponse {
	return &RecordResponse{
		Key:         key,
		Type:        r.Type,
		Content:     r.Content,
		HasPassword: r.IsProtected(),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type BulkResult struct {
	SavedCount       int      `json:"saved_count"`
	DeletedCount     int      `json:"deleted_count"`
	ParseErrors      []string `json:"parse_errors"`
	ValidationErrors []string `json:"validation_errors"`
}

type BulkPreview struct {
	Diff             string   `json:"diff"`
	Added            []string `json:"added"`
	Removed          []string `json:"removed"`
	Changed          []string `json:"changed"`
	ParseErrors      []string `json:"parse_errors"`
	ValidationErrors []string `json:"validation_errors"`
}
