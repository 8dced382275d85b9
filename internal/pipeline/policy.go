package pipeline

import (
	"path/filepath"
	"strings"
)

// CategoryPolicy describes how one upload field name is stored: the key
// prefix its objects live under, the category label reported to callers, and
// the set of file extensions the field accepts. An empty Extensions slice
// accepts any extension.
type CategoryPolicy struct {
	Folder     string   `yaml:"folder"`
	Category   string   `yaml:"category"`
	Extensions []string `yaml:"extensions"`
}

// Classification is the outcome of matching a part against the category
// table.
type Classification struct {
	Field    string
	Folder   string
	Category string
	// Video marks fields whose files take the transcode path.
	Video bool
}

var imageExtensions = []string{"jpeg", "jpg", "png", "gif", "webp"}

// VideoExtensions is the extension set that routes a file through the
// transcode path.
var VideoExtensions = []string{"mp4", "avi", "mov", "wmv", "flv", "webm"}

// DefaultPolicies mirrors the field-name table the service ships with. New
// categories are additive configuration, not code.
func DefaultPolicies() map[string]CategoryPolicy {
	return map[string]CategoryPolicy{
		"thumbnail":    {Folder: "thumbnails/", Category: "thumbnail", Extensions: imageExtensions},
		"video":        {Folder: "videos/", Category: "video", Extensions: VideoExtensions},
		"profileImage": {Folder: "profiles/", Category: "profile_image", Extensions: imageExtensions},
		"resource":     {Folder: "resources/", Category: "resource", Extensions: []string{"pdf", "doc", "docx", "ppt", "pptx", "txt", "zip", "rar"}},
		"artical":      {Folder: "articals/", Category: "article", Extensions: []string{"pdf", "doc", "docx", "txt"}},
		"banner":       {Folder: "banners/", Category: "banner", Extensions: imageExtensions},
		"files":        {Folder: "others/", Category: "project_file"},
		"projectFiles": {Folder: "project-files/", Category: "project_file"},
		"courseFiles":  {Folder: "course-files/", Category: "course_file"},
		"file":         {Folder: "others/", Category: "other"},
	}
}

// Classifier validates parts against a category table. It is pure
// configuration: safe for concurrent use once constructed.
type Classifier struct {
	policies map[string]CategoryPolicy
}

func NewClassifier(policies map[string]CategoryPolicy) *Classifier {
	if len(policies) == 0 {
		policies = DefaultPolicies()
	}
	table := make(map[string]CategoryPolicy, len(policies))
	for field, policy := range policies {
		if policy.Folder != "" && !strings.HasSuffix(policy.Folder, "/") {
			policy.Folder += "/"
		}
		if policy.Folder == "" {
			policy.Folder = "others/"
		}
		table[field] = policy
	}
	return &Classifier{policies: table}
}

// Classify maps a field name and original filename to a storage folder and
// category, rejecting unknown fields and disallowed extensions before any
// I/O happens.
func (c *Classifier) Classify(fieldName, originalName string) (Classification, error) {
	policy, ok := c.policies[fieldName]
	if !ok {
		return Classification{}, &UnknownFieldError{Field: fieldName, Allowed: c.FieldNames()}
	}
	ext := normalizeExtension(originalName)
	if len(policy.Extensions) > 0 && !containsExtension(policy.Extensions, ext) {
		return Classification{}, &DisallowedTypeError{Field: fieldName, Extension: ext, Allowed: policy.Extensions}
	}
	return Classification{
		Field:    fieldName,
		Folder:   policy.Folder,
		Category: policy.Category,
		Video:    containsExtension(VideoExtensions, ext),
	}, nil
}

// FieldNames returns the configured field-name allow-list.
func (c *Classifier) FieldNames() []string {
	names := make([]string, 0, len(c.policies))
	for name := range c.policies {
		names = append(names, name)
	}
	return names
}

func normalizeExtension(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

func containsExtension(allowed []string, ext string) bool {
	for _, candidate := range allowed {
		if normalizeExtension("."+candidate) == ext {
			return true
		}
	}
	return false
}
