package model

// VersionInfo mirrors GET /version deployment metadata.
type VersionInfo struct {
	VersionTag    string `json:"version_tag"`
	BackendImage  string `json:"backend_image"`
	FrontendImage string `json:"frontend_image"`
}

// Valid reports whether the payload carries usable version fields.
func (v VersionInfo) Valid() bool {
	return v.VersionTag != "" && v.VersionTag != "unknown"
}
