package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// InstallRequest is the body of POST /install. It is built once per install
// attempt and never persisted as-is.
type InstallRequest struct {
	DBConfig      *DBConfig      `json:"dbConfig"`
	AdminUser     *AdminUser     `json:"adminUser"`
	SiteConfig    *SiteConfig    `json:"siteConfig"`
	StorageConfig *StorageConfig `json:"storageConfig"`
}

type DBConfig struct {
	// Type is the engine kind: "postgres" (default) or "sqlite".
	Type     string `json:"type,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     Port   `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslMode,omitempty"`
	// Path is the database file for the sqlite engine.
	Path string `json:"path,omitempty"`
}

type AdminUser struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SiteConfig struct {
	SiteName        string `json:"siteName"`
	SiteDescription string `json:"siteDescription"`
	SiteURL         string `json:"siteUrl"`
	DefaultModel    string `json:"defaultModel"`
}

type StorageType string

const (
	StorageLocal StorageType = "local"
	StorageCloud StorageType = "cloud"
)

type StorageConfig struct {
	Type          StorageType `json:"type"`
	Path          string      `json:"path,omitempty"`
	CloudProvider string      `json:"cloudProvider,omitempty"`
	APIKey        string      `json:"apiKey,omitempty"`
	Bucket        string      `json:"bucket,omitempty"`
	Region        string      `json:"region,omitempty"`
}

// Port accepts both JSON numbers and numeric strings; the install wizard
// submits form values as strings.
type Port int

func (p *Port) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == `""` {
		*p = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid port %q", raw)
	}
	if v < 0 || v > 65535 {
		return fmt.Errorf("port %d out of range", v)
	}
	*p = Port(v)
	return nil
}

func (p Port) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(p))
}

func (p Port) String() string {
	if p == 0 {
		return ""
	}
	return strconv.Itoa(int(p))
}

// InstallResult is the aggregated outcome of one provisioning run.
type InstallResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Cause   string `json:"cause,omitempty"`
}

type InstallStatus struct {
	Installed   bool    `json:"installed"`
	InstalledAt *string `json:"installedAt"`
}

type Progress struct {
	Progress int    `json:"progress"`
	Step     string `json:"step"`
}

type TableStatus struct {
	Table  string `json:"table"`
	Exists bool   `json:"exists"`
}

type CheckDBRequest struct {
	DBConfig *DBConfig `json:"dbConfig"`
}

type CheckDBResponse struct {
	Tables []TableStatus `json:"tables"`
}
