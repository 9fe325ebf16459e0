package handler

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/repository"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/bot/service"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/excel"
)

// ImportHandler 表格导入处理器
type ImportHandler struct {
	bomSvc  *service.BOMImportService
	flatSvc *service.FlatImportService
	runs    *repository.ImportRunRepository
}

// NewImportHandler 创建表格导入处理器
func NewImportHandler(bomSvc *service.BOMImportService, flatSvc *service.FlatImportService, runs *repository.ImportRunRepository) *ImportHandler {
	return &ImportHandler{bomSvc: bomSvc, flatSvc: flatSvc, runs: runs}
}

// readUpload 解析上传的 xlsx 文件
func readUpload(c *gin.Context) (filename string, data []byte, ok bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "没有上传文件")
		return "", nil, false
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".xlsx" && ext != ".xlsm" {
		BadRequest(c, "仅支持 .xlsx 文件")
		return "", nil, false
	}

	f, err := fh.Open()
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return "", nil, false
	}
	defer f.Close()

	data, err = io.ReadAll(f)
	if err != nil {
		InternalError(c, "读取上传文件失败: "+err.Error())
		return "", nil, false
	}

	return fh.Filename, data, true
}

// ImportBOM 导入层级BOM表
// POST /api/v1/import/bom
func (h *ImportHandler) ImportBOM(c *gin.Context) {
	filename, data, ok := readUpload(c)
	if !ok {
		return
	}

	// 可选的name字段覆盖文件名，作为无1阶行表格的顶层产品标识来源
	if name := c.PostForm("name"); name != "" {
		filename = name
	}

	summary, err := h.bomSvc.Import(c.Request.Context(), filename, data, c.PostForm("triggered_by"))
	if err != nil {
		importError(c, err)
		return
	}
	Success(c, summary)
}

// ImportSuppliers 批量导入供应商
// POST /api/v1/import/suppliers
func (h *ImportHandler) ImportSuppliers(c *gin.Context) {
	filename, data, ok := readUpload(c)
	if !ok {
		return
	}

	summary, err := h.flatSvc.ImportSuppliers(c.Request.Context(), filename, data, c.PostForm("triggered_by"))
	if err != nil {
		importError(c, err)
		return
	}
	Success(c, summary)
}

// ImportMaterials 批量导入物料
// POST /api/v1/import/materials
func (h *ImportHandler) ImportMaterials(c *gin.Context) {
	filename, data, ok := readUpload(c)
	if !ok {
		return
	}

	summary, err := h.flatSvc.ImportMaterials(c.Request.Context(), filename, data, c.PostForm("triggered_by"))
	if err != nil {
		importError(c, err)
		return
	}
	Success(c, summary)
}

// importError 表结构问题按参数错误返回，其余按服务器错误
func importError(c *gin.Context, err error) {
	if errors.Is(err, excel.ErrUnrecognizedSchema) || errors.Is(err, excel.ErrEmptySheet) {
		BadRequest(c, err.Error())
		return
	}
	InternalError(c, err.Error())
}

// ListRuns 查询导入记录
// GET /api/v1/imports
func (h *ImportHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		Success(c, ListResponse{Items: []struct{}{}, Pagination: &Pagination{Page: 1, PageSize: 20}})
		return
	}

	page, pageSize := GetPagination(c)
	runs, total, err := h.runs.FindAll(c.Request.Context(), page, pageSize, c.Query("type"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	Success(c, ListResponse{
		Items: runs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// GetRun 查询单条导入记录
// GET /api/v1/imports/:id
func (h *ImportHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		NotFound(c, "导入记录不存在")
		return
	}

	run, err := h.runs.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			NotFound(c, "导入记录不存在")
			return
		}
		InternalError(c, err.Error())
		return
	}
	Success(c, run)
}
