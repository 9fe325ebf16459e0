package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/Yu2Zzzz/discord-supply-bot/internal/excel"
	"github.com/Yu2Zzzz/discord-supply-bot/internal/shared/catalog"
)

// buildXLSX 在内存里构造单表工作簿
func buildXLSX(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("CoordinatesToCellName: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write workbook: %v", err)
	}
	return buf.Bytes()
}

// fakeCatalog 内存版供应链后端：products/materials建档 + BOM替换
type fakeCatalog struct {
	mu sync.Mutex

	records map[string]map[string]string // entityType → code → id
	creates map[string]int               // entityType → POST次数
	bom     map[string][]catalog.BOMItem // productID → 最近一次写入

	// conflictCodes POST时强制返回409的编码（模拟并发导入抢先建档）
	conflictCodes map[string]bool
	// failCodes POST时强制返回500的编码
	failCodes map[string]bool

	nextID int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		records: map[string]map[string]string{
			"products":  {},
			"materials": {},
			"suppliers": {},
		},
		creates:       map[string]int{},
		bom:           map[string][]catalog.BOMItem{},
		conflictCodes: map[string]bool{},
		failCodes:     map[string]bool{},
	}
}

func (f *fakeCatalog) codeField(entityType string) string {
	switch entityType {
	case "products":
		return "productCode"
	case "suppliers":
		return "supplierCode"
	default:
		return "materialCode"
	}
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	// PUT /products/{id}/bom
	if r.Method == http.MethodPut && len(parts) == 3 && parts[0] == "products" && parts[2] == "bom" {
		var body struct {
			BOMItems []catalog.BOMItem `json:"bomItems"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.bom[parts[1]] = body.BOMItems
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
		return
	}

	if len(parts) != 1 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entityType := parts[0]
	store, ok := f.records[entityType]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		keyword := r.URL.Query().Get("keyword")
		var list []map[string]interface{}
		for code, id := range store {
			if keyword != "" && !strings.Contains(code, keyword) {
				continue
			}
			list = append(list, map[string]interface{}{
				"id":                   id,
				f.codeField(entityType): code,
			})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"data": list})

	case http.MethodPost:
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		code, _ := payload[f.codeField(entityType)].(string)

		f.creates[entityType]++

		if f.failCodes[code] {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"message": "internal error"})
			return
		}
		if f.conflictCodes[code] {
			// 冲突的同时记录落库，回查能找到
			if _, exists := store[code]; !exists {
				f.nextID++
				store[code] = fmt.Sprintf("id-%d", f.nextID)
			}
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"message": "编码已存在"})
			return
		}
		if _, exists := store[code]; exists {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"message": "编码已存在"})
			return
		}

		f.nextID++
		id := fmt.Sprintf("id-%d", f.nextID)
		store[code] = id
		json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"id": id}})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestImportService(t *testing.T) (*BOMImportService, *fakeCatalog, func()) {
	t.Helper()
	fake := newFakeCatalog()
	srv := httptest.NewServer(fake)
	client := catalog.NewClient(srv.URL, nil)
	svc := NewBOMImportService(client, nil, NewArchive(nil, ""), nil)
	return svc, fake, srv.Close
}

func bomSheet() [][]string {
	return [][]string{
		{"某公司BOM导出"},
		{"层级", "物料编码", "物料名称", "用量"},
		{"2", "M1", "外壳", "3"},
		{"2", "SUB", "组件", "2"},
		{"3", "M2", "螺丝", "5"},
	}
}

func TestImportEndToEnd(t *testing.T) {
	svc, fake, closeSrv := newTestImportService(t)
	defer closeSrv()

	data := buildXLSX(t, bomSheet())
	summary, err := svc.Import(context.Background(), "7203-20 BOM.xlsx", data, "tester")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if summary.Products.Succeeded != 1 || summary.Products.Failed != 0 {
		t.Errorf("products = %+v, want 1 success", summary.Products)
	}
	if summary.Materials.Succeeded != 3 {
		t.Errorf("materials = %+v, want 3 success", summary.Materials)
	}
	if summary.BOMWrites.Succeeded != 1 {
		t.Errorf("bom writes = %+v, want 1 success", summary.BOMWrites)
	}

	// 文件名兜底产品：尾部BOM字样去掉
	productID := fake.records["products"]["7203-20"]
	if productID == "" {
		t.Fatalf("product 7203-20 not created, records = %+v", fake.records["products"])
	}

	items := fake.bom[productID]
	if len(items) != 3 {
		t.Fatalf("bom items = %+v, want 3", items)
	}
	wantQty := map[string]float64{"M1": 3, "SUB": 2, "M2": 10}
	idToCode := map[string]string{}
	for code, id := range fake.records["materials"] {
		idToCode[id] = code
	}
	for _, item := range items {
		code := idToCode[item.MaterialID]
		if item.Quantity != wantQty[code] {
			t.Errorf("material %s quantity = %v, want %v (沿树累乘)", code, item.Quantity, wantQty[code])
		}
	}
}

func TestImportIdempotent(t *testing.T) {
	svc, fake, closeSrv := newTestImportService(t)
	defer closeSrv()

	data := buildXLSX(t, bomSheet())
	ctx := context.Background()

	if _, err := svc.Import(ctx, "7203-20 BOM.xlsx", data, ""); err != nil {
		t.Fatalf("first import: %v", err)
	}
	createsAfterFirst := fake.creates["products"] + fake.creates["materials"]

	summary, err := svc.Import(ctx, "7203-20 BOM.xlsx", data, "")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	// 第二次全部走查找复用，不再POST
	createsAfterSecond := fake.creates["products"] + fake.creates["materials"]
	if createsAfterSecond != createsAfterFirst {
		t.Errorf("creates went from %d to %d, second run should not create", createsAfterFirst, createsAfterSecond)
	}
	if summary.Products.Failed != 0 || summary.Materials.Failed != 0 || summary.BOMWrites.Failed != 0 {
		t.Errorf("second run has failures: %+v", summary)
	}
	if len(fake.records["materials"]) != 3 {
		t.Errorf("materials = %d, want 3 (no duplicates)", len(fake.records["materials"]))
	}
}

func TestImportConflictResolvedByRequery(t *testing.T) {
	svc, fake, closeSrv := newTestImportService(t)
	defer closeSrv()

	// M1 的POST恒409冲突，但冲突时记录已在远端，回查可复用
	fake.conflictCodes["M1"] = true

	data := buildXLSX(t, bomSheet())
	summary, err := svc.Import(context.Background(), "7203-20 BOM.xlsx", data, "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if summary.Materials.Failed != 0 {
		t.Errorf("materials = %+v, conflict should be resolved by re-query", summary.Materials)
	}
	if summary.BOMWrites.Succeeded != 1 {
		t.Errorf("bom writes = %+v, want 1 success", summary.BOMWrites)
	}
}

func TestImportUnresolvableMaterialRecorded(t *testing.T) {
	svc, fake, closeSrv := newTestImportService(t)
	defer closeSrv()

	fake.failCodes["M2"] = true

	data := buildXLSX(t, bomSheet())
	summary, err := svc.Import(context.Background(), "7203-20 BOM.xlsx", data, "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if summary.Materials.Failed != 1 {
		t.Errorf("materials = %+v, want 1 failure (M2)", summary.Materials)
	}
	unmatched := summary.UnmatchedMaterials["7203-20"]
	if len(unmatched) != 1 || unmatched[0] != "M2" {
		t.Errorf("unmatched = %+v, want [M2]", summary.UnmatchedMaterials)
	}

	// 其余物料照常写入
	productID := fake.records["products"]["7203-20"]
	if len(fake.bom[productID]) != 2 {
		t.Errorf("bom items = %+v, want 2 (M2 excluded)", fake.bom[productID])
	}
}

func TestImportSkipsEmptyBOMWrite(t *testing.T) {
	svc, fake, closeSrv := newTestImportService(t)
	defer closeSrv()

	// 两个物料全都建档失败 → 没有可写行，不发空替换
	fake.failCodes["M1"] = true
	fake.failCodes["SUB"] = true
	fake.failCodes["M2"] = true

	data := buildXLSX(t, bomSheet())
	summary, err := svc.Import(context.Background(), "7203-20 BOM.xlsx", data, "")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if len(fake.bom) != 0 {
		t.Errorf("bom writes = %+v, want none (no valid items)", fake.bom)
	}
	if summary.BOMWrites.Attempted != 0 {
		t.Errorf("bom attempts = %d, want 0 (skipped, not failed)", summary.BOMWrites.Attempted)
	}
}

func TestImportUnrecognizedSchema(t *testing.T) {
	svc, _, closeSrv := newTestImportService(t)
	defer closeSrv()

	data := buildXLSX(t, [][]string{
		{"姓名", "电话"},
		{"张三", "13800000000"},
	})

	_, err := svc.Import(context.Background(), "bad.xlsx", data, "")
	if !errors.Is(err, excel.ErrUnrecognizedSchema) {
		t.Fatalf("err = %v, want ErrUnrecognizedSchema", err)
	}
}

func TestIdentityFromFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"7203-20 BOM.xlsx", "7203-20"},
		{"uploads/7203-20BOM.xlsx", "7203-20"},
		{"P100.xlsx", "P100"},
		{"12345.0.xlsx", "12345"},
	}
	for _, c := range cases {
		got := identityFromFilename(c.in)
		if got.Code != c.want {
			t.Errorf("identityFromFilename(%q).Code = %q, want %q", c.in, got.Code, c.want)
		}
	}
}
