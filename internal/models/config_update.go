package models

import "time"

// ConstantAssignment is a single boolean define() in wp-config.php.
type ConstantAssignment struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

// BackupInfo describes one backup snapshot of the configuration file.
type BackupInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// UpdateResult reports the outcome of an update_constants call.
type UpdateResult struct {
	ID       string               `json:"id"`
	Path     string               `json:"path"`
	Changed  bool                 `json:"changed"`
	Updated  []ConstantAssignment `json:"updated,omitempty"`
	Inserted []ConstantAssignment `json:"inserted,omitempty"`
	Backup   *BackupInfo          `json:"backup,omitempty"`
}
