package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONB JSONB类型
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to scan JSONB: %v", value)
	}
	return json.Unmarshal(bytes, j)
}

// 导入类型
const (
	ImportTypeBOM       = "bom"
	ImportTypeSuppliers = "suppliers"
	ImportTypeMaterials = "materials"
)

// 导入状态
const (
	ImportStatusRunning = "running"
	ImportStatusDone    = "done"
	ImportStatusFailed  = "failed"
)

// ImportRun 一次导入调用的审计记录。只记录过程与汇总——BOM数据本身
// 不在本地落库，远端目录才是唯一持久存储。
type ImportRun struct {
	ID        string `json:"id" gorm:"primaryKey;size:36"`
	Type      string `json:"type" gorm:"size:20;not null;index"` // bom/suppliers/materials
	Filename  string `json:"filename" gorm:"size:255"`
	ObjectKey string `json:"object_key" gorm:"size:255"` // MinIO中的原始文件归档

	Status  string `json:"status" gorm:"size:20;not null;default:running"` // running/done/failed
	Error   string `json:"error" gorm:"type:text"`
	Summary JSONB  `json:"summary" gorm:"type:jsonb"`

	TriggeredBy string     `json:"triggered_by" gorm:"size:64"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at"`
}

func (ImportRun) TableName() string {
	return "bot_import_runs"
}
