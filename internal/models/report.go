package models

import (
	"encoding/json"
	"time"
)

// BatchRecord 批量抓取中单个相册的结果,按JSONL逐行输出
type BatchRecord struct {
	URL         string          `json:"url"`
	Count       int             `json:"count"`
	Items       []ExtractedItem `json:"items,omitempty"`
	Error       ErrorKind       `json:"error,omitempty"`
	Message     string          `json:"message,omitempty"`
	Duration    float64         `json:"duration"` // 秒
	ProcessedAt time.Time       `json:"processed_at"`
}

// Success 是否成功
func (r *BatchRecord) Success() bool {
	return r.Error == ""
}

// BatchReport 批量抓取报告
type BatchReport struct {
	InputFile  string    `json:"input_file"`
	OutputFile string    `json:"output_file"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   float64   `json:"duration"` // 秒

	TotalURLs    int               `json:"total_urls"`
	SuccessCount int               `json:"success_count"`
	FailCount    int               `json:"fail_count"`
	ItemCounts   map[ItemKind]int  `json:"item_counts"`
	ErrorCounts  map[ErrorKind]int `json:"error_counts,omitempty"`
	FailedURLs   []FailedURL       `json:"failed_urls,omitempty"`
}

// FailedURL 失败URL信息
type FailedURL struct {
	URL       string    `json:"url"`
	ErrorKind ErrorKind `json:"error_kind"`
	ErrorMsg  string    `json:"error_msg"`
}

// ToJSON 序列化为JSON
func (r *BatchReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
