package model

import (
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeMarkdown FileType = "md"
	FileTypeText     FileType = "txt"
)

// FileTypeOf 根据文件扩展名判断文件类型
func FileTypeOf(fileName string) FileType {
	extension := filepath.Ext(fileName)
	return FileType(strings.ToLower(strings.TrimPrefix(extension, ".")))
}
