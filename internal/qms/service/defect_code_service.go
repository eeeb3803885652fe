package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/bitfantasy/nimo-qms/internal/qms/entity"
	"github.com/bitfantasy/nimo-qms/internal/qms/repository"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// 导入文件编码
const (
	EncodingAuto = ""
	EncodingUTF8 = "utf-8"
	EncodingGBK  = "gbk"
)

// DefectCodeService 缺陷代码主数据服务
type DefectCodeService struct {
	repo            *repository.DefectCodeRepository
	activityLogRepo *repository.ActivityLogRepository
	logger          *zap.Logger
}

func NewDefectCodeService(repos *repository.Repositories, logger *zap.Logger) *DefectCodeService {
	return &DefectCodeService{repo: repos.DefectCode, activityLogRepo: repos.ActivityLog, logger: logger}
}

// List 缺陷代码列表
func (s *DefectCodeService) List(ctx context.Context, category string, activeOnly bool) ([]entity.DefectCode, error) {
	return s.repo.FindAll(ctx, category, activeOnly)
}

// ImportResult 导入结果
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

var importHeaders = map[string]bool{"code": true, "代码": true, "缺陷代码": true}

var activeValues = map[string]bool{
	"": true, "1": true, "true": true, "y": true, "yes": true, "是": true, "启用": true,
	"0": false, "false": false, "n": false, "no": false, "否": false, "停用": false,
}

// Import 导入CSV：code,name,category,severity[,active]，支持GBK与UTF-8
func (s *DefectCodeService) Import(ctx context.Context, userID string, r io.Reader, encoding string) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var reader io.Reader = bytes.NewReader(data)
	switch strings.ToLower(encoding) {
	case EncodingGBK:
		reader = transform.NewReader(reader, simplifiedchinese.GBK.NewDecoder())
	case EncodingUTF8:
	case EncodingAuto:
		if !utf8.Valid(data) {
			reader = transform.NewReader(reader, simplifiedchinese.GBK.NewDecoder())
		}
	default:
		return nil, &FieldError{Field: "encoding", Message: "must be utf-8 or gbk"}
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, &FieldError{Field: "file", Message: "invalid csv: " + err.Error()}
	}

	result := &ImportResult{}
	var codes []entity.DefectCode
	seen := make(map[string]int)
	for i, row := range rows {
		lineNo := i + 1
		if i == 0 && len(row) > 0 && importHeaders[strings.ToLower(strings.TrimSpace(row[0]))] {
			continue
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		dc, msg := parseDefectCodeRow(row)
		if msg != "" {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("第%d行: %s", lineNo, msg))
			continue
		}
		// 文件内重复代码以最后一行为准
		if idx, ok := seen[dc.Code]; ok {
			codes[idx] = dc
			continue
		}
		seen[dc.Code] = len(codes)
		codes = append(codes, dc)
	}

	if len(codes) > 0 {
		if err := s.repo.Upsert(ctx, codes); err != nil {
			return nil, fmt.Errorf("save defect codes: %w", err)
		}
	}
	result.Imported = len(codes)

	logActivity(ctx, s.activityLogRepo, s.logger, entity.EntityTypeDefectCode, "import", "", "import", "", "",
		fmt.Sprintf("导入缺陷代码: 成功 %d 失败 %d", result.Imported, result.Failed), userID)
	return result, nil
}

func parseDefectCodeRow(row []string) (entity.DefectCode, string) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	dc := entity.DefectCode{
		Code:     strings.ToUpper(cell(0)),
		Name:     cell(1),
		Category: strings.ToLower(cell(2)),
		Severity: strings.ToLower(cell(3)),
	}
	if dc.Code == "" {
		return dc, "缺少缺陷代码"
	}
	if dc.Name == "" {
		return dc, "缺少名称"
	}
	if !entity.ValidDefectCategories[dc.Category] {
		return dc, "无效的类别 " + cell(2)
	}
	if !entity.ValidSeverities[dc.Severity] {
		return dc, "无效的严重度 " + cell(3)
	}
	active, ok := activeValues[strings.ToLower(cell(4))]
	if !ok {
		return dc, "无效的启用标记 " + cell(4)
	}
	dc.Active = active
	return dc, ""
}
