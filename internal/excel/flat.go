package excel

import (
	"strconv"
	"strings"
)

// 平面表导入（供应商/物料）：没有层级，只是表头别名 → 字段的逐行映射。
// 别名表沿用BOM表头的匹配方式，但按整表头归一化后的键精确查找。

// SupplierRow 供应商导入行
type SupplierRow struct {
	SupplierCode  string
	Name          string
	Category      string
	ProductName   string
	UnitPrice     *float64
	PaymentMethod string
	ContactPerson string
	Phone         string
	Email         string
	Address       string
	OnTimeRate    *float64
	QualityRate   *float64
	Remark        string
	Status        string
}

// MaterialRow 物料导入行
type MaterialRow struct {
	MaterialCode string
	Name         string
	Spec         string
	Unit         string
	Price        *float64
	SafeStock    *float64
	LeadTime     *float64
	Buyer        string
	Category     string
	Status       string
}

var supplierAliases = map[string][]string{
	"supplierCode":  {"suppliercode", "supplier_code", "供应商编码", "编码", "code"},
	"name":          {"供应商名称", "供应商", "name"},
	"category":      {"类目", "category"},
	"productName":   {"productname", "product_name", "品名", "产品名", "产品"},
	"unitPrice":     {"unitprice", "unit_price", "单价", "价格"},
	"paymentMethod": {"paymentmethod", "payment_method", "付款方式", "支付方式"},
	"contactPerson": {"contactperson", "contact_person", "联系人"},
	"phone":         {"电话", "手机号", "phone", "mobile"},
	"email":         {"邮箱", "email", "mail"},
	"address":       {"地址", "address"},
	"onTimeRate":    {"ontimerate", "on_time_rate", "准时率", "及时率"},
	"qualityRate":   {"qualityrate", "quality_rate", "质量率", "合格率"},
	"remark":        {"备注", "remark"},
	"status":        {"状态", "status"},
}

var materialAliases = map[string][]string{
	"materialCode": {"materialcode", "material_code", "物料编码", "编码", "code", "sku"},
	"name":         {"物料名称", "品名", "name"},
	"spec":         {"规格", "spec"},
	"unit":         {"单位", "unit"},
	"price":        {"单价", "price"},
	"safeStock":    {"safestock", "safe_stock", "安全库存", "安全量"},
	"leadTime":     {"leadtime", "lead_time", "交期", "周期"},
	"buyer":        {"采购员", "采购人", "buyer", "purchaser"},
	"category":     {"类目", "category"},
	"status":       {"状态", "status"},
}

// rowValues 表头归一化后映射到行内取值，空值不收
func rowValues(header, row []string) map[string]string {
	values := make(map[string]string, len(header))
	for c, h := range header {
		key := normalizeHeader(h)
		if key == "" || c >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[c])
		if v == "" {
			continue
		}
		if _, exists := values[key]; !exists {
			values[key] = v
		}
	}
	return values
}

func pickAlias(values map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if v, ok := values[alias]; ok {
			return v
		}
	}
	return ""
}

func parseOptionalFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &f
}

// ParseSupplierRow 按别名表提取一行供应商数据
func ParseSupplierRow(header, row []string) SupplierRow {
	v := rowValues(header, row)
	pick := func(field string) string { return pickAlias(v, supplierAliases[field]) }

	return SupplierRow{
		SupplierCode:  NormalizeCode(pick("supplierCode")),
		Name:          pick("name"),
		Category:      pick("category"),
		ProductName:   pick("productName"),
		UnitPrice:     parseOptionalFloat(pick("unitPrice")),
		PaymentMethod: pick("paymentMethod"),
		ContactPerson: pick("contactPerson"),
		Phone:         pick("phone"),
		Email:         pick("email"),
		Address:       pick("address"),
		OnTimeRate:    parseOptionalFloat(pick("onTimeRate")),
		QualityRate:   parseOptionalFloat(pick("qualityRate")),
		Remark:        pick("remark"),
		Status:        pick("status"),
	}
}

// ParseMaterialRow 按别名表提取一行物料数据
func ParseMaterialRow(header, row []string) MaterialRow {
	v := rowValues(header, row)
	pick := func(field string) string { return pickAlias(v, materialAliases[field]) }

	return MaterialRow{
		MaterialCode: NormalizeCode(pick("materialCode")),
		Name:         pick("name"),
		Spec:         pick("spec"),
		Unit:         pick("unit"),
		Price:        parseOptionalFloat(pick("price")),
		SafeStock:    parseOptionalFloat(pick("safeStock")),
		LeadTime:     parseOptionalFloat(pick("leadTime")),
		Buyer:        pick("buyer"),
		Category:     pick("category"),
		Status:       pick("status"),
	}
}
